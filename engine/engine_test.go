package engine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultIdentity(t *testing.T) {
	assert := assert.New(t)

	identity := DefaultIdentity()
	assert.Equal("ZHVtbXlfdG9rZW4=", identity.Token)
	assert.Equal("dummy_token", identity.UserId)
	assert.Equal("Bearer ZHVtbXlfdG9rZW4=", identity.Authorization())
}

func TestParseAuthorization(t *testing.T) {
	assert := assert.New(t)

	tests := map[string]struct {
		authorization string
		expected      *Identity
	}{
		"empty": {
			authorization: "",
			expected:      nil,
		},
		"basic": {
			authorization: "Basic ZHVtbXlfdG9rZW4=",
			expected:      nil,
		},
		"blank token": {
			authorization: "Bearer  ",
			expected:      nil,
		},
		"not encoded": {
			authorization: "Bearer dummy_token",
			expected:      nil,
		},
		"valid": {
			authorization: "Bearer ZHVtbXlfdG9rZW4=",
			expected:      &Identity{Token: "ZHVtbXlfdG9rZW4=", UserId: "dummy_token"},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			actual, err := ParseAuthorization(test.authorization)

			if test.expected != nil {
				assert.Nil(err)
				assert.Equal(*test.expected, actual)
			} else {
				assert.Error(err)
			}
		})
	}
}

func TestUnmarshalExternalTaskState(t *testing.T) {
	assert := assert.New(t)

	tests := map[string]struct {
		json     string
		expected ExternalTaskState
	}{
		"null": {
			json:     "null",
			expected: 0,
		},
		"empty": {
			json:     `""`,
			expected: -1,
		},
		"unknown": {
			json:     `"UNKNOWN"`,
			expected: -1,
		},
		"pending": {
			json:     `"PENDING"`,
			expected: ExternalTaskPending,
		},
		"service error": {
			json:     `"SERVICE_ERROR"`,
			expected: ExternalTaskServiceError,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			var actual ExternalTaskState
			err := json.Unmarshal([]byte(test.json), &actual)

			if test.expected != -1 {
				assert.Nil(err)
				assert.Equal(test.expected, actual)
			} else {
				assert.Error(err)
			}
		})
	}
}

func TestExternalTaskIsLocked(t *testing.T) {
	assert := assert.New(t)

	now := time.Now()
	expiresAt := now.Add(time.Second)

	task := ExternalTask{}
	assert.False(task.IsLocked(now))

	task.LockedBy = "test-worker"
	task.LockExpiresAt = &expiresAt
	assert.True(task.IsLocked(now))
	assert.False(task.IsLocked(expiresAt))
}

func TestOptionsValidate(t *testing.T) {
	assert := assert.New(t)

	valid := Options{
		DefaultQueryLimit:   1000,
		EngineId:            DefaultEngineId,
		LockSweepCron:       "*/1 * * * *",
		LongPollingInterval: 250 * time.Millisecond,
	}
	assert.Nil(valid.Validate())

	invalidCron := valid
	invalidCron.LockSweepCron = "* * *"
	assert.Error(invalidCron.Validate())

	noSweep := valid
	noSweep.LockSweepCron = ""
	assert.Nil(noSweep.Validate())

	blankEngineId := valid
	blankEngineId.EngineId = " "
	assert.Error(blankEngineId.Validate())
}
