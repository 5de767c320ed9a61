package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// decodeArgs unmarshals and validates tool arguments.
func decodeArgs(raw json.RawMessage, dst interface{}) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("malformed arguments: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("argument %s failed %q validation", fe.Field(), fe.Tag())
		}
		return err
	}
	return nil
}

// StringList accepts either a JSON array of strings or a single string.
type StringList []string

func (l *StringList) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*l = StringList{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return fmt.Errorf("expected a string or a list of strings")
	}
	*l = many
	return nil
}

// DefaultDelaySeconds is used when a delay arrives as a non-numeric string.
const DefaultDelaySeconds = 60

// Seconds accepts a JSON number or a numeric string. Non-numeric strings become DefaultDelaySeconds.
type Seconds int

func (s *Seconds) UnmarshalJSON(b []byte) error {
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*s = Seconds(n)
		return nil
	}
	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("expected a number of seconds")
	}
	v, err := strconv.Atoi(strings.TrimSpace(str))
	if err != nil {
		v = DefaultDelaySeconds
	}
	*s = Seconds(v)
	return nil
}

type alarmArgs struct {
	AlarmName string `json:"alarm_name"`
	Time      string `json:"time" validate:"omitempty,max=16"`
	Minutes   int    `json:"minutes" validate:"gte=0"`
	Hours     int    `json:"hours" validate:"gte=0"`
}

type blockArgs struct {
	Websites StringList `json:"websites" validate:"required,min=1,dive,required"`
	Minutes  *int       `json:"minutes" validate:"omitempty,gte=0"`
	Hours    *int       `json:"hours" validate:"omitempty,gte=0"`
}

type promptArgs struct {
	Prompt       string  `json:"prompt" validate:"required"`
	DelaySeconds Seconds `json:"delay_seconds"`
}

type cancelArgs struct {
	ActionID uint64 `json:"action_id" validate:"required"`
}

type readArgs struct {
	Filename string `json:"filename" validate:"required"`
}

type writeArgs struct {
	Filename string `json:"filename" validate:"required"`
	Content  string `json:"content"`
}

type memoryArgs struct {
	Content string `json:"content" validate:"required"`
}

type codeArgs struct {
	Code string `json:"code" validate:"required"`
}
