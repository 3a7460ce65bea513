package corella_test

import (
	"time"

	gomock "go.uber.org/mock/gomock"
	"i4.energy/across/corella/corella"
	"i4.energy/across/corella/at"
)

// testReadTimeout is the read timeout configured by newConfig.
const testReadTimeout = 50 * time.Millisecond

type MockSequenceBuilder struct {
	transport *corella.MockTransport
	calls     []any
}

func NewMockSequence(transport *corella.MockTransport) *MockSequenceBuilder {
	return &MockSequenceBuilder{
		transport: transport,
		calls:     []any{},
	}
}

// Open expects the read timeout to be configured after dialing.
func (b *MockSequenceBuilder) Open() *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().SetReadTimeout(testReadTimeout).Return(nil),
	)
	return b
}

// Exchange expects request to be written and answers with response. When
// the response has no final line, a quiet read ends it.
func (b *MockSequenceBuilder) Exchange(request, response string) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Write([]byte(request)).Return(len(request), nil),
		b.transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			return copy(p, response), nil
		}),
	)
	if !at.Terminated([]byte(response)) {
		b.Quiet()
	}
	return b
}

// Silent expects request to be written and never answered.
func (b *MockSequenceBuilder) Silent(request string) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Write([]byte(request)).Return(len(request), nil),
	)
	return b.Quiet()
}

// Quiet expects a read that returns nothing, as when the read timeout elapses.
func (b *MockSequenceBuilder) Quiet() *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Read(gomock.Any()).Return(0, nil),
	)
	return b
}

func (b *MockSequenceBuilder) ID(id string) *MockSequenceBuilder {
	return b.Exchange("AT+ID?\r\n", id+"\r\n")
}

func (b *MockSequenceBuilder) Version(firmware, hardware string) *MockSequenceBuilder {
	return b.Exchange("AT+VERSION?\r\n", "CORELLA\r\nF.W="+firmware+"\r\nH.W="+hardware+"\r\n")
}

func (b *MockSequenceBuilder) Diagnostics(response string) *MockSequenceBuilder {
	return b.Exchange("AT+DIAGNOSTICS?\r\n", response)
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}

// newConfig builds a Config around dialer with the test read timeout.
func newConfig(dialer corella.Dialer) (corella.Config, error) {
	return corella.NewConfigBuilder().
		WithDialer(dialer).
		WithReadTimeout(testReadTimeout).
		Build()
}
