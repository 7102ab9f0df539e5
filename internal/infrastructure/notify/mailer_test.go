package notify

import (
	"context"
	"errors"
	"testing"

	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	message string
	title   string
	errs    []error
}

func (r *recordingSender) Send(message string, params *stypes.Params) []error {
	r.message = message
	if params != nil {
		r.title, _ = params.Title()
	}
	return r.errs
}

func TestPublishReportFlattensHTML(t *testing.T) {
	t.Parallel()

	rec := &recordingSender{}
	m := &Mailer{sender: rec}
	m.logger = discardLogger()

	err := m.PublishReport(context.Background(), "EBMS Article XML Refresh (ebms)",
		"<p>Refreshed 3 articles.</p>\n<p style=\"color: green\">Processing time: 1.5 seconds.</p>")
	require.NoError(t, err)
	assert.Equal(t, "EBMS Article XML Refresh (ebms)", rec.title)
	assert.Equal(t, "Refreshed 3 articles.\nProcessing time: 1.5 seconds.", rec.message)
}

func TestPublishReportSurfacesSendErrors(t *testing.T) {
	t.Parallel()

	m := &Mailer{sender: &recordingSender{errs: []error{nil, errors.New("smtp down")}}, logger: discardLogger()}
	err := m.PublishReport(context.Background(), "subject", "<p>body</p>")
	assert.ErrorContains(t, err, "smtp down")
}

func TestPublishReportWithoutRecipients(t *testing.T) {
	t.Parallel()

	m, err := NewMailer(nil, 0, discardLogger())
	require.NoError(t, err)
	assert.ErrorIs(t, m.PublishReport(context.Background(), "subject", "body"), ErrNoRecipients)
}

func TestNewMailerRejectsUnknownService(t *testing.T) {
	t.Parallel()

	_, err := NewMailer([]string{"nosuchservice://host"}, 0, discardLogger())
	assert.Error(t, err)
}
