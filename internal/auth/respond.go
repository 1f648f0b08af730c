package auth

import (
	"fmt"
	"mime"
	"net/http"

	"event-ticketing/internal/apperr"
	"event-ticketing/internal/utils"
)

// IsJSONBody reports whether the request body is JSON rather than a submitted form.
func IsJSONBody(r *http.Request) bool {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return mt == "application/json"
}

func wantsJSONResponse(r *http.Request) bool {
	return WantsAPI(r) || IsJSONBody(r)
}

// Fail answers API clients with a JSON error and browsers with a 303 to redirectTo carrying the
// error message as a flash.
func (a *Authenticator) Fail(w http.ResponseWriter, r *http.Request, err error, redirectTo string) {
	appErr := apperr.From(err)
	if appErr.Kind == apperr.KindInternal {
		a.Logger.Error("API", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
	}
	if wantsJSONResponse(r) {
		utils.WriteError(w, appErr)
		return
	}
	a.Redirect(w, r, redirectTo, FlashError, appErr.Message)
}

// Succeed is the success counterpart of Fail.
func (a *Authenticator) Succeed(w http.ResponseWriter, r *http.Request, status int, message string, data interface{}, redirectTo string) {
	if wantsJSONResponse(r) {
		utils.WriteSuccess(w, status, message, data)
		return
	}
	a.Redirect(w, r, redirectTo, FlashSuccess, message)
}
