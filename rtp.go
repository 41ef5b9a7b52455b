package movie

import (
	"github.com/pion/rtp"
)

// DefaultMTU is the default maximum RTP packet size.
const DefaultMTU = 1200

const rtpHeaderSize = 12

// L16Packetizer frames the session's fixed-format PCM into RTP packets
// carrying uncompressed L16 audio (RFC 3551 section 4.5.11). L16 payloads
// are network byte order, so the little-endian S16 chunk bytes are swapped
// while packetizing. The RTP timestamp clock equals the sample rate.
type L16Packetizer struct {
	ssrc        uint32
	payloadType uint8
	mtu         int
	channels    int
	sequencer   rtp.Sequencer
	timestamp   uint32
}

// NewL16Packetizer creates a packetizer for interleaved S16 PCM with the
// given channel count.
func NewL16Packetizer(ssrc uint32, pt uint8, mtu, channels int) *L16Packetizer {
	if mtu <= 0 {
		mtu = DefaultMTU
	}
	if channels <= 0 {
		channels = audioOutChannels
	}
	return &L16Packetizer{
		ssrc:        ssrc,
		payloadType: pt,
		mtu:         mtu,
		channels:    channels,
		sequencer:   rtp.NewRandomSequencer(),
	}
}

// Packetize converts one chunk of interleaved little-endian S16 PCM into
// RTP packets. Odd trailing bytes and partial sample groups are dropped.
// The packetizer keeps a running timestamp, so feed it contiguous chunks.
func (p *L16Packetizer) Packetize(pcm []byte) []*rtp.Packet {
	bytesPerGroup := p.channels * 2
	if len(pcm) < bytesPerGroup {
		return nil
	}

	maxGroups := (p.mtu - rtpHeaderSize) / bytesPerGroup
	if maxGroups <= 0 {
		maxGroups = 1
	}

	total := len(pcm) / bytesPerGroup
	var packets []*rtp.Packet
	for off := 0; off < total; off += maxGroups {
		groups := total - off
		if groups > maxGroups {
			groups = maxGroups
		}

		src := pcm[off*bytesPerGroup : (off+groups)*bytesPerGroup]
		payload := make([]byte, len(src))
		// S16LE to network byte order.
		for i := 0; i+1 < len(src); i += 2 {
			payload[i] = src[i+1]
			payload[i+1] = src[i]
		}

		packets = append(packets, &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    p.payloadType,
				SequenceNumber: p.sequencer.NextSequenceNumber(),
				Timestamp:      p.timestamp,
				SSRC:           p.ssrc,
			},
			Payload: payload,
		})
		p.timestamp += uint32(groups)
	}
	return packets
}

// PacketizeToBytes converts one PCM chunk to raw RTP packet bytes.
func (p *L16Packetizer) PacketizeToBytes(pcm []byte) ([][]byte, error) {
	packets := p.Packetize(pcm)
	result := make([][]byte, len(packets))
	for i, pkt := range packets {
		buf, err := pkt.Marshal()
		if err != nil {
			return nil, err
		}
		result[i] = buf
	}
	return result, nil
}

// Timestamp returns the RTP timestamp of the next packet.
func (p *L16Packetizer) Timestamp() uint32 { return p.timestamp }

// SSRC returns the configured SSRC.
func (p *L16Packetizer) SSRC() uint32 { return p.ssrc }

// PayloadType returns the configured payload type.
func (p *L16Packetizer) PayloadType() uint8 { return p.payloadType }
