package strategy

import (
	"fmt"

	"github.com/greetday/greetday/internal/models"
)

const MessageTypeAnniversary = "ANNIVERSARY"

// Anniversary greets a user on the anniversary of their AnniversaryDate
// (typically hire date). Users with no AnniversaryDate configured are
// skipped entirely — EventDate reports ok=false rather than guessing.
type Anniversary struct{}

func (Anniversary) MessageType() string { return MessageTypeAnniversary }

func (Anniversary) EventDate(user *models.User) (models.EventDate, bool) {
	if user.AnniversaryDate == nil {
		return models.EventDate{}, false
	}
	return *user.AnniversaryDate, true
}

func (Anniversary) ComposeMessage(user *models.User) (subject, body string) {
	subject = fmt.Sprintf("Happy Work Anniversary, %s!", user.Name)
	body = fmt.Sprintf("Happy work anniversary, %s! Thank you for another great year.", user.Name)
	return subject, body
}
