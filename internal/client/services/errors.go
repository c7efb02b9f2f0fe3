package services

import (
	"errors"
	"regexp"

	"github.com/dmitrijs2005/lazydrop/internal/client/client"
	"github.com/dmitrijs2005/lazydrop/internal/client/models"
	"github.com/dmitrijs2005/lazydrop/internal/common"
)

var planLimitPattern = regexp.MustCompile(`(?i)\b(limit|limits|quota|plan)\b`)

// Navigation targets offered by toast actions.
const (
	RouteLogin   = "/login"
	RouteSignup  = "/signup"
	RoutePricing = "/pricing"
	RouteLanding = "/"
)

// toastFor turns a failed action ("create a session", "upload a.txt") into
// a user-facing error toast with a call to action where one helps.
func toastFor(action string, err error) models.Toast {
	t := models.Toast{Severity: models.SeverityError}
	msg := client.MessageOf(err)
	var apiErr *client.APIError
	isAPI := errors.As(err, &apiErr)

	switch {
	case errors.Is(err, common.ErrNoActiveSession):
		t.Message = "You are not in a session."
	case errors.Is(err, common.ErrInvalidCode):
		t.Message = "That session code doesn't look right. Codes have 6 to 8 letters or digits."
	case errors.Is(err, common.ErrEmptyNote):
		t.Message = "Type something before sending."
	case errors.Is(err, common.ErrNotOwner):
		t.Message = "Only the session owner can end the session for everyone."
	case errors.Is(err, common.ErrFileNotFound):
		t.Message = "That file is no longer in this session."
	case errors.Is(err, client.ErrUnauthorized):
		t.Message = "Please log in to " + action + "."
		t.Action = &models.ToastAction{Label: "Log in", Navigate: RouteLogin}
	case errors.Is(err, client.ErrRateLimited) || (isAPI && planLimitPattern.MatchString(msg)):
		t.Message = "Your plan limit was reached: " + msg
		t.Action = &models.ToastAction{Label: "Upgrade", Navigate: RoutePricing}
	case errors.Is(err, client.ErrForbidden):
		t.Message = "You don't have permission to " + action + ". Create an account to unlock it."
		t.Action = &models.ToastAction{Label: "Sign up", Navigate: RouteSignup}
	case errors.Is(err, client.ErrNotFound), errors.Is(err, common.ErrSessionExpired):
		t.Message = "This session no longer exists or has expired."
		t.Action = &models.ToastAction{Label: "Back to start", Navigate: RouteLanding}
	case errors.Is(err, client.ErrUnavailable):
		t.Message = "Could not reach the server to " + action + ". Please try again."
	default:
		t.Message = "Could not " + action + ". Please try again."
	}
	return t
}
