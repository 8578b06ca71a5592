package strategy_test

import (
	"testing"
	"time"

	"github.com/greetday/greetday/internal/models"
	"github.com/greetday/greetday/internal/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := strategy.NewRegistry()
	reg.Register(strategy.Birthday{})
	reg.Register(strategy.Anniversary{})

	s, err := reg.Get(strategy.MessageTypeBirthday)
	require.NoError(t, err)
	assert.Equal(t, strategy.MessageTypeBirthday, s.MessageType())

	assert.Len(t, reg.All(), 2)
}

func TestRegistry_GetUnknown(t *testing.T) {
	reg := strategy.NewRegistry()
	_, err := reg.Get("DOES_NOT_EXIST")
	require.Error(t, err)
	var unknown *strategy.ErrUnknownMessageType
	assert.ErrorAs(t, err, &unknown)
}

func TestBirthday_EventDate_NilWhenUnset(t *testing.T) {
	s := strategy.Birthday{}
	user := &models.User{Name: "Ada"}
	_, ok := s.EventDate(user)
	assert.False(t, ok)
}

func TestBirthday_EventDate(t *testing.T) {
	s := strategy.Birthday{}
	user := &models.User{Name: "Ada", BirthDate: &models.EventDate{Year: 1990, Month: time.June, Day: 15}}
	date, ok := s.EventDate(user)
	require.True(t, ok)
	assert.Equal(t, time.June, date.Month)
	assert.Equal(t, 15, date.Day)
}

func TestAnniversary_EventDate_NilWhenUnset(t *testing.T) {
	s := strategy.Anniversary{}
	user := &models.User{Name: "Grace"}
	_, ok := s.EventDate(user)
	assert.False(t, ok)
}

func TestComposeMessage_NonEmpty(t *testing.T) {
	user := &models.User{Name: "Ada"}
	subject, body := strategy.Birthday{}.ComposeMessage(user)
	assert.Contains(t, subject, "Ada")
	assert.NotEmpty(t, body)
}
