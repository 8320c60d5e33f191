package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Scheduling & Publication Errors
var (
	ErrConfigNotFound          = errors.New("blog config not found")
	ErrSchedulingDisabled      = errors.New("scheduling disabled")
	ErrScheduleTimeMissing     = errors.New("schedule time missing")
	ErrInvalidSchedule         = errors.New("invalid schedule")
	ErrTopicGenerationFailed   = errors.New("topic generation failed")
	ErrContentGenerationFailed = errors.New("content generation failed")
	ErrImageGenerationFailed   = errors.New("image generation failed")
	ErrCredentialsMissing      = errors.New("wordpress credentials missing")
	ErrPublishFailed           = errors.New("publish failed")
	ErrInvalidState            = errors.New("invalid post state")
	ErrPostNotFound            = errors.New("post not found")
)

func NewConfigNotFoundError(id fmt.Stringer) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusNotFound,
		err:        ErrConfigNotFound,
		Details:    fmt.Sprintf("No blog config with id %s", id),
		Field:      "blogConfigId",
	}
}

func NewSchedulingDisabledError(id fmt.Stringer) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusConflict,
		err:        ErrSchedulingDisabled,
		Details:    fmt.Sprintf("Scheduling is not enabled for blog config %s", id),
		Field:      "schedulingEnabled",
	}
}

func NewScheduleTimeMissingError(id fmt.Stringer) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusUnprocessableEntity,
		err:        ErrScheduleTimeMissing,
		Details:    fmt.Sprintf("Blog config %s has no schedule time", id),
		Field:      "scheduleTime",
	}
}

func NewInvalidScheduleError(field string, cause error) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusUnprocessableEntity,
		err:        ErrInvalidSchedule,
		Field:      field,
		Cause:      cause,
	}
}

func NewTopicGenerationError(cause error) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusBadGateway,
		err:        ErrTopicGenerationFailed,
		Details:    "No topic candidates could be generated",
		Cause:      cause,
	}
}

func NewContentGenerationError(topic string, cause error) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusBadGateway,
		err:        ErrContentGenerationFailed,
		Details:    fmt.Sprintf("Generating content for %q failed", topic),
		Cause:      cause,
	}
}

func NewImageGenerationError(cause error) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusBadGateway,
		err:        ErrImageGenerationFailed,
		Cause:      cause,
	}
}

func NewCredentialsMissingError(id fmt.Stringer) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusUnprocessableEntity,
		err:        ErrCredentialsMissing,
		Details:    fmt.Sprintf("Blog config %s needs a WordPress url, username and application password", id),
		Field:      "wordpress",
	}
}

func NewPublishFailedError(postID fmt.Stringer, cause error) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusBadGateway,
		err:        ErrPublishFailed,
		Details:    fmt.Sprintf("Publishing post %s failed", postID),
		Cause:      cause,
	}
}

func NewInvalidStateError(postID fmt.Stringer, status, wanted string) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusConflict,
		err:        ErrInvalidState,
		Details:    fmt.Sprintf("Post %s is %s, expected %s", postID, status, wanted),
		Field:      "status",
	}
}

func NewPostNotFoundError(postID fmt.Stringer) *ApiErr {
	return &ApiErr{
		StatusCode: http.StatusNotFound,
		err:        ErrPostNotFound,
		Details:    fmt.Sprintf("No post with id %s", postID),
		Field:      "postId",
	}
}

func IsInvalidStateError(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

func IsPublishFailedError(err error) bool {
	return errors.Is(err, ErrPublishFailed)
}

// IsScheduleConfigError reports errors that only a change of the blog config
// can resolve; retrying them is pointless.
func IsScheduleConfigError(err error) bool {
	return errors.Is(err, ErrConfigNotFound) ||
		errors.Is(err, ErrSchedulingDisabled) ||
		errors.Is(err, ErrScheduleTimeMissing) ||
		errors.Is(err, ErrInvalidSchedule)
}
