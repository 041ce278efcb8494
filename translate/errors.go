package translate

import "fmt"

// Kind classifies a translation service failure.
type Kind string

const (
	// KindKeyInvalid: the API key is malformed or unknown.
	KindKeyInvalid Kind = "key-invalid"
	// KindKeyBlocked: the API key has been blocked.
	KindKeyBlocked Kind = "key-blocked"
	// KindDailyRequestLimit: the daily request quota is exhausted.
	KindDailyRequestLimit Kind = "daily-request-limit"
	// KindDailyCharLimit: the daily character quota is exhausted.
	KindDailyCharLimit Kind = "daily-char-limit"
	// KindTextTooLong: the text exceeds the service's size limit.
	KindTextTooLong Kind = "text-too-long"
	// KindUnprocessableText: the service could not translate the text.
	KindUnprocessableText Kind = "unprocessable-text"
	// KindLangNotSupported: the language pair is not supported.
	KindLangNotSupported Kind = "lang-not-supported"
	// KindRateLimited: too many requests; retry after a pause.
	KindRateLimited Kind = "rate-limited"
	// KindUnavailable: transport failure or server error.
	KindUnavailable Kind = "unavailable"
)

// ServiceError is a typed failure from the translation service.
type ServiceError struct {
	Kind Kind
	// Code is the status code reported by the service, when there was one.
	Code    int
	Message string
}

func (e *ServiceError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("translation service: %s (%d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("translation service: %s: %s", e.Kind, e.Message)
}

// Retryable reports whether retrying the same request can succeed.
// Quota, key, and language-pair failures are final; rate limiting and
// transient unavailability are not.
func (e *ServiceError) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindUnavailable:
		return true
	}
	return false
}

// Fatal reports whether the failure dooms the whole run rather than a single
// entry. A blocked key or an exhausted daily quota fails every subsequent
// request, so there is no point carrying on.
func (e *ServiceError) Fatal() bool {
	switch e.Kind {
	case KindKeyInvalid, KindKeyBlocked, KindDailyRequestLimit, KindDailyCharLimit, KindLangNotSupported:
		return true
	}
	return false
}

// kindForCode maps the service's status codes to failure kinds.
func kindForCode(code int) Kind {
	switch code {
	case 401:
		return KindKeyInvalid
	case 402:
		return KindKeyBlocked
	case 403:
		return KindDailyRequestLimit
	case 404:
		return KindDailyCharLimit
	case 413:
		return KindTextTooLong
	case 422:
		return KindUnprocessableText
	case 501:
		return KindLangNotSupported
	case 429:
		return KindRateLimited
	}
	return KindUnavailable
}
