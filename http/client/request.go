package client

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/gclaussn/go-extask/engine"
	"github.com/gclaussn/go-extask/http/common"
)

func encodeQueryOptions(options engine.QueryOptions) string {
	values := make(url.Values)

	if options.Offset > 0 {
		values.Add(common.QueryOffset, strconv.Itoa(options.Offset))
	}
	if options.Limit > 0 {
		values.Add(common.QueryLimit, strconv.Itoa(options.Limit))
	}

	if len(values) == 0 {
		return ""
	}

	return "?" + values.Encode()
}

func resolve(path string, id string) string {
	return strings.Replace(path, "{id}", url.PathEscape(id), 1)
}
