package strategy

import (
	"fmt"

	"github.com/greetday/greetday/internal/models"
)

const MessageTypeBirthday = "BIRTHDAY"

// Birthday greets a user on the anniversary of their BirthDate.
type Birthday struct{}

func (Birthday) MessageType() string { return MessageTypeBirthday }

func (Birthday) EventDate(user *models.User) (models.EventDate, bool) {
	if user.BirthDate == nil {
		return models.EventDate{}, false
	}
	return *user.BirthDate, true
}

func (Birthday) ComposeMessage(user *models.User) (subject, body string) {
	subject = fmt.Sprintf("Happy Birthday, %s!", user.Name)
	body = fmt.Sprintf("Happy birthday, %s! Wishing you a great year ahead.", user.Name)
	return subject, body
}
