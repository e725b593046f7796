package test

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"

	"github.com/stretchr/testify/require"
)

// SESFixture is an httptest server standing in for the SES query API. It records the form of each
// SendEmail request and answers with a canned success response.
type SESFixture struct {
	Server *httptest.Server
	mu     sync.Mutex
	sent   []url.Values
	status int
}

const sendEmailResponse = `<SendEmailResponse xmlns="http://ses.amazonaws.com/doc/2010-12-01/">
  <SendEmailResult><MessageId>%s</MessageId></SendEmailResult>
  <ResponseMetadata><RequestId>test-request-id</RequestId></ResponseMetadata>
</SendEmailResponse>`

const errorResponse = `<ErrorResponse xmlns="http://ses.amazonaws.com/doc/2010-12-01/">
  <Error><Type>Sender</Type><Code>MessageRejected</Code><Message>Email address is not verified.</Message></Error>
  <RequestId>test-request-id</RequestId>
</ErrorResponse>`

func NewSESFixture(t require.TestingT) *SESFixture {
	f := &SESFixture{status: http.StatusOK}
	f.Server = httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		body, err := io.ReadAll(request.Body)
		require.NoError(t, err)
		form, err := url.ParseQuery(string(body))
		require.NoError(t, err)
		require.Equal(t, "SendEmail", form.Get("Action"), "unexpected SES action")

		f.mu.Lock()
		f.sent = append(f.sent, form)
		status := f.status
		f.mu.Unlock()

		writer.Header().Set("Content-Type", "text/xml")
		writer.WriteHeader(status)
		if status == http.StatusOK {
			_, err = fmt.Fprintf(writer, sendEmailResponse, "message-id")
		} else {
			_, err = fmt.Fprint(writer, errorResponse)
		}
		require.NoError(t, err)
	}))
	return f
}

// Rejecting makes every following request fail with a MessageRejected error.
func (f *SESFixture) Rejecting() *SESFixture {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = http.StatusBadRequest
	return f
}

func (f *SESFixture) Sent() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.sent...)
}

func (f *SESFixture) Teardown() {
	f.Server.Close()
}
