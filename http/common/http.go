package common

const (
	ContentTypeJson        = "application/json"
	ContentTypeProblemJson = "application/problem+json"

	HeaderAuthorization = "Authorization"
	HeaderContentType   = "Content-Type"

	BasePath = "/api/external_task/v1"

	PathFetchAndLock = BasePath + "/fetch_and_lock"

	PathTaskExtendLock         = BasePath + "/task/{id}/extend_lock"
	PathTaskFinish             = BasePath + "/task/{id}/finish"
	PathTaskHandleBpmnError    = BasePath + "/task/{id}/handle_bpmn_error"
	PathTaskHandleServiceError = BasePath + "/task/{id}/handle_service_error"

	PathTasks       = BasePath + "/tasks"
	PathTasksQuery  = BasePath + "/tasks/query"
	PathTasksUnlock = BasePath + "/tasks/unlock"

	PathMetrics   = "/metrics"
	PathReadiness = "/readiness"
	PathTime      = "/time"

	QueryLimit  = "limit"
	QueryOffset = "offset"
)

// IsPublicPath determines if a path can be requested without authorization.
func IsPublicPath(path string) bool {
	return path == PathReadiness || path == PathMetrics
}
