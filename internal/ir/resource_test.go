package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRefRoundTrip(t *testing.T) {
	res := &Resource{Type: "aws:EC2.SecurityGroup", Name: "edge"}
	ref := res.Ref("id")
	assert.Equal(t, "ptr://aws:EC2.SecurityGroup/edge/id", ref)

	addr, attr, ok := ParseRef(ref)
	assert.True(t, ok)
	assert.Equal(t, res.Addr(), addr)
	assert.Equal(t, "id", attr)
}

func TestParseRef(t *testing.T) {
	tests := []struct {
		ref  string
		addr string
		ok   bool
	}{
		{"ptr://aws:S3.Bucket/logs/arn", "aws:S3.Bucket.logs", true},
		{"ptr://aws:S3.Bucket/logs", "aws:S3.Bucket.logs", true},
		{"not-a-ref", "", false},
		{"ptr://short", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			addr, _, ok := ParseRef(tt.ref)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.addr, addr)
		})
	}
}

func TestStateFind(t *testing.T) {
	s := &State{Resources: []*ResourceState{{Type: "aws:S3.Bucket", Name: "objects"}}}
	assert.NotNil(t, s.Find("aws:S3.Bucket.objects"))
	assert.Nil(t, s.Find("aws:S3.Bucket.other"))
}
