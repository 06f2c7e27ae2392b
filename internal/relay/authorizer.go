package relay

import (
	"matchmate-chat/internal/domain/chat"
)

// Authorizer decides which rooms a user may join.
type Authorizer struct{}

func NewAuthorizer() *Authorizer {
	return &Authorizer{}
}

// CanJoin admits the two participants of a direct chat and nobody else.
func (a *Authorizer) CanJoin(userID, room string) bool {
	return chat.HasParticipant(room, userID)
}

