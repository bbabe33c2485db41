package mqtt

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/desmo/fleet/helpers"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLength(t *testing.T) {
	t.Parallel()
	cases := []struct {
		n      int
		expect string
	}{
		{0, "00"},
		{1, "01"},
		{127, "7f"},
		{128, "8001"},
		{321, "c102"},
		{16383, "ff7f"},
		{16384, "808001"},
		{2097151, "ffff7f"},
		{2097152, "80808001"},
		{MaxRemainingLength, "ffffff7f"},
	}
	for _, c := range cases {
		c := c
		t.Run(fmt.Sprint(c.n), func(t *testing.T) {
			b, err := AppendLength(nil, c.n)
			require.NoError(t, err)
			assert.Equal(t, c.expect, fmt.Sprintf("%x", b))
			assert.Equal(t, len(b), LengthSize(c.n))
			n, err := DecodeLength(bytes.NewReader(b))
			require.NoError(t, err)
			assert.Equal(t, c.n, n)
		})
	}
}

func TestLengthError(t *testing.T) {
	t.Parallel()
	_, err := AppendLength(nil, MaxRemainingLength+1)
	assert.Equal(t, ErrMalformedLength, errors.Cause(err))
	_, err = AppendLength(nil, -1)
	assert.Equal(t, ErrMalformedLength, errors.Cause(err))

	r := bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0x01})
	_, err = DecodeLength(r)
	assert.Equal(t, ErrMalformedLength, errors.Cause(err))
	assert.Equal(t, 1, r.Len(), "must not consume 5th byte")

	_, err = DecodeLength(bytes.NewReader([]byte{0x80}))
	require.Error(t, err)
}

func TestString(t *testing.T) {
	t.Parallel()
	b, err := AppendString(nil, "")
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0}, b)

	b, err = AppendString([]byte{0xaa}, "MQTT")
	require.NoError(t, err)
	assert.Equal(t, helpers.MustHex("aa00044d515454"), b)
	s, rest, ok := DecodeString(b[1:])
	assert.True(t, ok)
	assert.Equal(t, "MQTT", s)
	assert.Len(t, rest, 0)

	long := strings.Repeat("x", MaxStringLength)
	b, err = AppendString(nil, long)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xff}, b[:2])
	_, err = AppendString(nil, long+"x")
	assert.Equal(t, ErrStringTooLong, errors.Cause(err))

	_, _, ok = DecodeString([]byte{0x00, 0x05, 'a'})
	assert.False(t, ok)
	_, _, ok = DecodeString([]byte{0x00})
	assert.False(t, ok)
}

func TestPacketBytes(t *testing.T) {
	t.Parallel()
	mustPacket := func(b []byte, err error) string {
		require.NoError(t, err)
		return fmt.Sprintf("%x", b)
	}
	assert.Equal(t, "101a00044d51545404020014000e73696d5f636c69656e745f313031",
		mustPacket(ConnectPacket("sim_client_101", 20)))
	assert.Equal(t, "32080003612f620001ff", mustPacket(PublishPacket("a/b", []byte{0xff}, QOS1, 1)))
	assert.Equal(t, "300400017478", mustPacket(PublishPacket("t", []byte("x"), QOS0, 0)))
	assert.Equal(t, "820800010003612f6201", mustPacket(SubscribePacket(1, "a/b", QOS1)))
	assert.Equal(t, "4002fffe", fmt.Sprintf("%x", PubackPacket(0xfffe)))
	assert.Equal(t, "c000", fmt.Sprintf("%x", pingreqPacket))
	assert.Equal(t, "e000", fmt.Sprintf("%x", disconnectPacket))

	_, err := PublishPacket(strings.Repeat("t", MaxStringLength+1), nil, QOS0, 0)
	assert.Equal(t, ErrStringTooLong, errors.Cause(err))
}

func TestPacketString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "<PINGREQ len=2 c000>", PacketString(pingreqPacket))
	assert.Equal(t, "SUBSCRIBE", PacketTypeString(TypeSubscribe))
	assert.Equal(t, "PUBLISH", PacketTypeString(0x32))
	assert.Equal(t, "(empty)", PacketString(nil))
	assert.Contains(t, PacketString(make([]byte, 100)), "...")
}
