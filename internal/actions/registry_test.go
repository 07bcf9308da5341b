package actions

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCoversAllCapabilities(t *testing.T) {
	r := NewRegistry("Asia/Kolkata")

	cases := map[string]string{
		"sendEmail":              CapabilityGmail,
		"readEmails":             CapabilityGmail,
		"searchEmails":           CapabilityGmail,
		"getEmailThread":         CapabilityGmail,
		"markEmailsAsRead":       CapabilityGmail,
		"scheduleMeeting":        CapabilityCalendar,
		"createRecurringEvent":   CapabilityCalendar,
		"getUpcomingEvents":      CapabilityCalendar,
		"getEvent":               CapabilityCalendar,
		"updateEvent":            CapabilityCalendar,
		"deleteEvent":            CapabilityCalendar,
		"searchEvents":           CapabilityCalendar,
		"findFreeTimeSlots":      CapabilityCalendar,
		"checkEventConflicts":    CapabilityCalendar,
		"getCalendarList":        CapabilityCalendar,
		"createDocument":         CapabilityDocs,
		"formatDocument":         CapabilityDocs,
		"readDocument":           CapabilityDocs,
		"updateDocument":         CapabilityDocs,
		"shareDocument":          CapabilityDocs,
		"searchDocuments":        CapabilityDocs,
		"deleteDocument":         CapabilityDocs,
		"getDocumentPermissions": CapabilityDocs,
	}

	for name, capability := range cases {
		action, err := r.Lookup(name)
		require.NoError(t, err, name)
		assert.Equal(t, capability, action.Capability, name)
		assert.NotNil(t, action.Execute, name)
		assert.NotNil(t, action.Narrate, name)
	}
}

func TestRegistryUnknownActionIsError(t *testing.T) {
	r := NewRegistry("UTC")

	_, err := r.Lookup("launchRocket")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action: launchRocket")

	_, err = r.Capability("launchRocket")
	assert.Error(t, err)
}

func TestRegistryNamesAreSorted(t *testing.T) {
	r := NewRegistry("UTC")

	names := r.Names()
	require.NotEmpty(t, names)
	for i := 1; i < len(names); i++ {
		assert.Less(t, names[i-1], names[i])
	}
}

func TestNarrationMentionsKeyParameters(t *testing.T) {
	r := NewRegistry("UTC")

	action, err := r.Lookup("sendEmail")
	require.NoError(t, err)

	narration := action.Narrate(Params{"to": "a@example.com", "subject": "Hello"})
	assert.NotEmpty(t, narration.Intro)
	assert.NotEmpty(t, narration.Progress)
}

func TestBuildTextStyle(t *testing.T) {
	style, fields := buildTextStyle(Params{
		"bold":     true,
		"italic":   false,
		"fontSize": float64(14),
		"foregroundColor": map[string]interface{}{
			"red": 1.0, "green": 0.0, "blue": 0.0,
		},
	})

	assert.ElementsMatch(t, []string{"bold", "italic", "fontSize", "foregroundColor"}, fields)
	assert.True(t, style.Bold)
	// An explicit false still rides the update mask so it can clear
	// existing formatting.
	assert.False(t, style.Italic)
	assert.Contains(t, style.ForceSendFields, "Italic")
	require.NotNil(t, style.FontSize)
	assert.Equal(t, float64(14), style.FontSize.Magnitude)
	require.NotNil(t, style.ForegroundColor)
	assert.Equal(t, float64(1), style.ForegroundColor.Color.RgbColor.Red)

	_, none := buildTextStyle(Params{})
	assert.Empty(t, none)
}

func TestParamsGetters(t *testing.T) {
	p := Params{
		"to":         "a@example.com",
		"maxResults": float64(25),
		"count":      "7",
		"notify":     true,
		"attendees":  []interface{}{"a@example.com", "b@example.com"},
		"single":     "solo@example.com",
	}

	assert.Equal(t, "a@example.com", p.String("to"))
	assert.Equal(t, "", p.String("missing"))

	// JSON numbers arrive as float64.
	assert.Equal(t, 25, p.Int("maxResults", 10))
	assert.Equal(t, 7, p.Int("count", 10))
	assert.Equal(t, 10, p.Int("missing", 10))

	assert.True(t, p.Bool("notify", false))
	assert.False(t, p.Bool("missing", false))

	if diff := cmp.Diff([]string{"a@example.com", "b@example.com"}, p.StringSlice("attendees")); diff != "" {
		t.Errorf("attendees mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"solo@example.com"}, p.StringSlice("single"))
	assert.Nil(t, p.StringSlice("missing"))
}

func TestParamsRequire(t *testing.T) {
	p := Params{"to": "a@example.com"}

	assert.NoError(t, p.require("sendEmail", "to"))

	err := p.require("sendEmail", "to", "subject")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"subject"`)
	assert.Contains(t, err.Error(), "sendEmail")
}
