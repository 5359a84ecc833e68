package mediatool

// Preset bundles the preset/tune/CRF tuple for one of the three scenario
// presets named in spec.md §4.3.
type Preset struct {
	Name           string
	EncoderPreset  string // ultrafast..veryslow
	Tune           string // film, animation, grain, stillimage, fastdecode, zerolatency
	CRF            int
}

var presets = map[string]Preset{
	"fast":     {Name: "fast", EncoderPreset: "veryfast", Tune: "fastdecode", CRF: 23},
	"balanced": {Name: "balanced", EncoderPreset: "fast", Tune: "film", CRF: 21},
	"quality":  {Name: "quality", EncoderPreset: "medium", Tune: "film", CRF: 18},
}

// PresetByName looks up one of fast/balanced/quality, falling back to
// balanced for an unrecognized name.
func PresetByName(name string) Preset {
	if p, ok := presets[name]; ok {
		return p
	}
	return presets["balanced"]
}

var validEncoderPresets = map[string]bool{
	"ultrafast": true, "superfast": true, "veryfast": true, "faster": true,
	"fast": true, "medium": true, "slow": true, "slower": true, "veryslow": true,
}

var validTunes = map[string]bool{
	"film": true, "animation": true, "grain": true, "stillimage": true,
	"fastdecode": true, "zerolatency": true,
}

// ValidEncoderPreset reports whether name is one of the enumerated presets.
func ValidEncoderPreset(name string) bool { return validEncoderPresets[name] }

// ValidTune reports whether name is one of the enumerated tunes.
func ValidTune(name string) bool { return validTunes[name] }

// HWAccel enumerates the hardware accelerator classes the builder may
// select between, each throttled independently since a given accelerator
// often has a small number of usable concurrent sessions.
type HWAccel string

const (
	HWAccelAuto     HWAccel = "auto"
	HWAccelNVENC    HWAccel = "nvenc"
	HWAccelQSV      HWAccel = "qsv"
	HWAccelVAAPI    HWAccel = "vaapi"
	HWAccelSoftware HWAccel = "software"
)
