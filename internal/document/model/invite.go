package model

// InviteError is a failure code returned by the invite_member procedure.
type InviteError string

const (
	InviteUserNotFound      InviteError = "user_not_found"
	InviteNotOwner          InviteError = "not_owner"
	InviteInvalidRole       InviteError = "invalid_role"
	InviteCannotInviteOwner InviteError = "cannot_invite_owner"
)

var inviteMessages = map[InviteError]string{
	InviteUserNotFound:      "This email is not registered. Ask them to sign in with a magic link once first.",
	InviteNotOwner:          "You are not the owner of this document.",
	InviteInvalidRole:       "Invalid role.",
	InviteCannotInviteOwner: "The document owner cannot be invited as a member.",
}

// Message returns the user-facing text for the code. Codes the table does not
// know are shown raw.
func (e InviteError) Message() string {
	if msg, ok := inviteMessages[e]; ok {
		return msg
	}
	return string(e)
}

// InviteResult is the decoded JSON answer of invite_member.
type InviteResult struct {
	Success bool        `json:"success"`
	Error   InviteError `json:"error"`
}

func (r InviteResult) OK() bool {
	return r.Error == "" && r.Success
}
