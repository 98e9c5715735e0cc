package audio

// DetectCodec sniffs the codec of an encoded container from its leading bytes.
// Recognised: RIFF/WAVE ("RIFF"), framed Opus ("CQOS"), and MPEG audio (ID3
// tag or an MPEG frame sync word). Anything else yields a *FormatError.
func DetectCodec(data []byte) (Codec, error) {
	if len(data) < 4 {
		return "", formatErrorf("", "payload too short to identify: %d bytes", len(data))
	}
	switch string(data[:4]) {
	case "RIFF":
		return CodecWAV, nil
	case opusMagic:
		return CodecOpus, nil
	}
	if string(data[:3]) == "ID3" {
		return CodecMP3, nil
	}
	// MPEG frame sync: eleven set bits at the start of a frame header.
	if data[0] == 0xFF && data[1]&0xE0 == 0xE0 {
		return CodecMP3, nil
	}
	return "", formatErrorf("", "unrecognised container magic % x", data[:4])
}

// Decode sniffs the container codec and fully decodes the payload to PCM.
// It is the single entry point for inbound wire messages on both sides of the
// connection.
func Decode(data []byte) (Clip, error) {
	codec, err := DetectCodec(data)
	if err != nil {
		return Clip{}, err
	}
	switch codec {
	case CodecWAV:
		return DecodeWAV(data)
	case CodecOpus:
		return DecodeOpus(data)
	case CodecMP3:
		return DecodeMP3(data)
	}
	return Clip{}, formatErrorf(codec, "no decoder registered")
}
