package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCallbackData_RoundTrip(t *testing.T) {
	action := Action{Label: "Готово", Key: KeyExtraditionDone, Payload: "0b5d8f3e-3c1a-4d9e-9a55-6f1f0c7e2a10"}

	key, payload := ParseCallbackData(action.CallbackData())
	assert.Equal(t, KeyExtraditionDone, key)
	assert.Equal(t, action.Payload, payload)

	key, payload = ParseCallbackData(Action{Key: KeyMenu}.CallbackData())
	assert.Equal(t, KeyMenu, key)
	assert.Empty(t, payload)

	key, payload = ParseCallbackData(" move.next | abc ")
	assert.Equal(t, KeyMoveNext, key)
	assert.Equal(t, "abc", payload)
}

func TestNotification_Rows(t *testing.T) {
	actions := []Action{{Key: "a"}, {Key: "b"}, {Key: "c"}}

	rows := Notification{Actions: actions}.Rows()
	assert.Equal(t, [][]Action{{{Key: "a"}, {Key: "b"}}, {{Key: "c"}}}, rows)

	rows = Notification{Actions: actions, Columns: 1}.Rows()
	assert.Len(t, rows, 3)

	assert.Nil(t, Notification{}.Rows())
}

func TestNotification_Empty(t *testing.T) {
	assert.True(t, Notification{ChatID: 1}.Empty())
	assert.False(t, Notification{ChatID: 1, Text: "hi"}.Empty())
	assert.False(t, Notification{ChatID: 1, Delete: []int{3}}.Empty())
}
