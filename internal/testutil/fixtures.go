package testutil

// Test constants for consistent test data.
const (
	// TestToken is a valid-format bot token for testing.
	TestToken = "123456789:ABCdefGHIjklMNOpqrsTUVwxyz"

	// TestToken2 and TestToken3 are additional credentials for
	// rotation tests.
	TestToken2 = "223456789:BBCdefGHIjklMNOpqrsTUVwxyz"
	TestToken3 = "323456789:CBCdefGHIjklMNOpqrsTUVwxyz"

	// TestChatID is a broadcast-channel destination.
	TestChatID = int64(-1001234567890)

	// TestBotID is a test bot ID.
	TestBotID = int64(123456789)
)
