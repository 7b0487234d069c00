package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// -----------------------------------------------------------------------------
// Mock S3 Client for Testing
// -----------------------------------------------------------------------------

// MockS3Client is a test double for API. Objects are keyed by bucket and key.
type MockS3Client struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// Call counters for test assertions
	GetObjectCalls  int
	HeadObjectCalls int

	// FailWith, when set, is returned by every call.
	FailWith error
}

// NewMockS3Client creates a new mock S3 client for testing.
func NewMockS3Client() *MockS3Client {
	return &MockS3Client{
		objects: make(map[string][]byte),
	}
}

// SetObject stores a copy of data at bucket/key.
func (m *MockS3Client) SetObject(bucket, key string, data []byte) {
	blob := make([]byte, len(data))
	copy(blob, data)

	m.mu.Lock()
	m.objects[objectKey(bucket, key)] = blob
	m.mu.Unlock()
}

// Calls returns the total number of API calls made.
func (m *MockS3Client) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.GetObjectCalls + m.HeadObjectCalls
}

// GetObject implements API.GetObject for testing.
func (m *MockS3Client) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	m.GetObjectCalls++
	fail := m.FailWith
	data, exists := m.objects[objectKey(aws.ToString(params.Bucket), aws.ToString(params.Key))]
	m.mu.Unlock()

	if fail != nil {
		return nil, fail
	}
	if !exists {
		return nil, &types.NoSuchKey{}
	}

	// Handle range requests
	if params.Range != nil {
		var start, end int64
		_, _ = fmt.Sscanf(aws.ToString(params.Range), "bytes=%d-%d", &start, &end)

		if start >= int64(len(data)) {
			return nil, &smithyAPIError{code: "InvalidRange", message: "requested range not satisfiable"}
		}
		if end >= int64(len(data)) {
			end = int64(len(data)) - 1
		}
		data = data[start : end+1]
	}

	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(data)),
		ContentLength: aws.Int64(int64(len(data))),
	}, nil
}

// HeadObject implements API.HeadObject for testing.
func (m *MockS3Client) HeadObject(_ context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	m.HeadObjectCalls++
	fail := m.FailWith
	data, exists := m.objects[objectKey(aws.ToString(params.Bucket), aws.ToString(params.Key))]
	m.mu.Unlock()

	if fail != nil {
		return nil, fail
	}
	if !exists {
		return nil, &smithyAPIError{code: "NotFound", message: "not found"}
	}

	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(data)))}, nil
}

func objectKey(bucket, key string) string {
	return bucket + "/" + key
}

// smithyAPIError implements smithy.APIError for testing.
type smithyAPIError struct {
	code    string
	message string
}

func (e *smithyAPIError) Error() string {
	return e.message
}

func (e *smithyAPIError) ErrorCode() string {
	return e.code
}

func (e *smithyAPIError) ErrorMessage() string {
	return e.message
}

func (e *smithyAPIError) ErrorFault() smithy.ErrorFault {
	return smithy.FaultUnknown
}

// Ensure MockS3Client implements API
var _ API = (*MockS3Client)(nil)
