package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{"pending", StatusPending, false},
		{" Confirmed ", StatusConfirmed, false},
		{"CANCELLED", StatusCancelled, false},
		{"done", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStatus(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusConfirmed.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}

func TestAppointmentWireShape(t *testing.T) {
	raw := `{"id":"a1","full_name":"Maria Lopez","email":"maria@example.com","phone":"5551234567",
		"service":"whitening","message":null,"preferred_date":"2024-05-02","status":"pending",
		"created_at":"2024-04-30T10:00:00Z"}`

	var a Appointment
	require.NoError(t, json.Unmarshal([]byte(raw), &a))
	assert.Nil(t, a.Message)
	assert.Equal(t, NewDate(2024, time.May, 2), a.PreferredDate)
	assert.Equal(t, StatusPending, a.Status)

	out, err := json.Marshal(a)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"preferred_date":"2024-05-02"`)
	assert.Contains(t, string(out), `"message":null`)
}

func TestDateRejectsGarbage(t *testing.T) {
	var d Date
	assert.Error(t, json.Unmarshal([]byte(`"02/05/2024"`), &d))
}

func TestCloneDetachesMessage(t *testing.T) {
	msg := "call me"
	a := Appointment{ID: "a1", Message: &msg}
	b := a.Clone()
	*b.Message = "changed"
	assert.Equal(t, "call me", *a.Message)
}

func TestIdentityOfFallsBackToEmail(t *testing.T) {
	avatar := "https://cdn.example.com/a.png"
	assert.Equal(t, Identity{ID: "u1", Email: "dr.ayse@clinic.com", Name: "dr.ayse"},
		IdentityOf(&User{ID: "u1", Email: "dr.ayse@clinic.com"}))
	assert.Equal(t, Identity{ID: "u2", Email: "x@y.z", Name: "Ayse", AvatarURL: avatar},
		IdentityOf(&User{ID: "u2", Email: "x@y.z", Name: "Ayse", AvatarURL: &avatar}))
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Hello World":                   "hello-world",
		"  Teeth Whitening: 5 Tips!  ":  "teeth-whitening-5-tips",
		"Implants & Veneers -- a guide": "implants-veneers-a-guide",
		"---":                           "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slugify(in), in)
	}
}
