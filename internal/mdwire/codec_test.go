package mdwire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("hello")))
	require.NoError(t, WriteFrame(&buf, []byte{}))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)

	got, err = ReadFrame(&buf)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestReadFrameRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, make([]byte, 16)))
	// corrupt the length prefix to claim more than MaxFrameBytes.
	raw := buf.Bytes()
	raw[0] = 0xff
	_, err := ReadFrame(bytes.NewReader(raw))
	require.Error(t, err)
}

func TestSyncableCBORRoundTrip(t *testing.T) {
	want := Syncable{
		Kind:    "fob",
		Origin:  bytes.Repeat([]byte{0xAB}, 32),
		ID:      bytes.Repeat([]byte{0x01}, 16),
		Serial:  42,
		Type:    "r",
		NewFLVs: 7,
	}
	data, err := Marshal(&want)
	require.NoError(t, err)

	var got Syncable
	require.NoError(t, Unmarshal(data, &got))
	require.Equal(t, want, got)
}

func TestHelloCBORRoundTrip(t *testing.T) {
	want := Hello{Protocol: 1, SyncMode: "synctree"}
	data, err := Marshal(&want)
	require.NoError(t, err)

	var got Hello
	require.NoError(t, Unmarshal(data, &got))
	require.Equal(t, want, got)
}

func TestSerialMapCBORRoundTrip(t *testing.T) {
	want := SerialMap{MaxSerial: map[string]uint64{"aa": 1, "bb": 2}}
	data, err := Marshal(&want)
	require.NoError(t, err)

	var got SerialMap
	require.NoError(t, Unmarshal(data, &got))
	require.Equal(t, want, got)
}

func TestWriteReadCBORFrame(t *testing.T) {
	var buf bytes.Buffer
	want := Hello{Protocol: 1, SyncMode: "serial"}
	require.NoError(t, WriteCBOR(&buf, &want))

	var got Hello
	require.NoError(t, ReadCBOR(&buf, &got))
	require.Equal(t, want, got)
}

func TestTreeLevelRoundTrip(t *testing.T) {
	nodes := []TreeNode{
		{Pos: 16, XOR: [16]byte{1}, ChXOR: [16]byte{2}},
		{Pos: 17, XOR: [16]byte{3}, ChXOR: [16]byte{4}},
	}
	data := EncodeTreeLevel(nodes)
	require.Len(t, data, len(nodes)*NodeBytes)

	got, err := DecodeTreeLevel(data)
	require.NoError(t, err)
	require.Equal(t, nodes, got)
}

func TestDecodeTreeLevelRejectsMisalignedPayload(t *testing.T) {
	_, err := DecodeTreeLevel(make([]byte, NodeBytes+1))
	require.Error(t, err)
}
