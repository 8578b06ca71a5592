package scheduler

import (
	"encoding/json"

	"github.com/greetday/greetday/internal/models"
)

func marshalWorkItem(item models.WorkItem) ([]byte, error) {
	return json.Marshal(item)
}
