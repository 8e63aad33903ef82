package transcribe

import "context"

// MockProvider returns a fixed transcript, for dev mode and tests.
type MockProvider struct {
	ProviderName string
	Text         string
	Err          error
	Calls        int
}

func (m *MockProvider) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

func (m *MockProvider) Transcribe(_ context.Context, _ []byte, _ string) (string, error) {
	m.Calls++
	if m.Err != nil {
		return "", m.Err
	}
	return m.Text, nil
}
