package wire

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Status is a response status code. On the wire it is a single string
// of the form "<code> <reason>", e.g. "204 NoContent" or
// "401 Unauthorized"; the reason phrase is informational only.
type Status struct {
	Code    int
	Message string
}

// Common statuses returned by the bridge.
var (
	StatusOK           = Status{Code: 200, Message: "OK"}
	StatusCreated      = Status{Code: 201, Message: "Created"}
	StatusNoContent    = Status{Code: 204, Message: "NoContent"}
	StatusBadRequest   = Status{Code: 400, Message: "BadRequest"}
	StatusUnauthorized = Status{Code: 401, Message: "Unauthorized"}
	StatusNotFound     = Status{Code: 404, Message: "NotFound"}
)

// IsSuccess returns true for 2xx statuses.
func (s Status) IsSuccess() bool {
	return s.Code >= 200 && s.Code < 300
}

// String returns the wire form of the status.
func (s Status) String() string {
	if s.Message == "" {
		return strconv.Itoa(s.Code)
	}
	return fmt.Sprintf("%d %s", s.Code, s.Message)
}

// MarshalJSON encodes the status in its wire form.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON parses the "<code> <reason>" wire form. A bare code
// without a reason phrase is accepted.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("status code is not a string: %w", err)
	}

	code, message, _ := strings.Cut(raw, " ")
	n, err := strconv.Atoi(code)
	if err != nil {
		return fmt.Errorf("invalid status code %q", raw)
	}

	s.Code = n
	s.Message = message
	return nil
}
