package delivery_test

import (
	"net/http"
	"testing"

	"github.com/greetday/greetday/internal/delivery"
	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	cases := map[int]delivery.Outcome{
		http.StatusOK:                  delivery.OutcomeSuccess,
		http.StatusCreated:             delivery.OutcomeSuccess,
		http.StatusTooManyRequests:     delivery.OutcomeTransient,
		http.StatusInternalServerError: delivery.OutcomeTransient,
		http.StatusBadGateway:          delivery.OutcomeTransient,
		http.StatusUnprocessableEntity: delivery.OutcomePoison,
		http.StatusBadRequest:          delivery.OutcomePermanent,
		http.StatusNotFound:            delivery.OutcomePermanent,
	}
	for status, want := range cases {
		assert.Equal(t, want, delivery.ClassifyStatus(status), "status %d", status)
	}
}
