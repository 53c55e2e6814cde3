package t30

/*------------------------------------------------------------------
 *
 * Purpose:	Load default FaxConfig values from an optional YAML
 *		profile file, the way the teacher reads tocalls.yaml at
 *		startup (deviceid.go): search a short list of locations,
 *		and carry on with defaults if nothing is found rather than
 *		failing the whole program.
 *
 *------------------------------------------------------------------*/

import (
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// sessionProfileSearchPath mirrors deviceid.go's search_locations: current
// directory first, then a couple of conventional install locations.
var sessionProfileSearchPath = []string{
	"faxsession.yaml",
	"data/faxsession.yaml",
	"../data/faxsession.yaml",
	"/usr/local/share/gofax/faxsession.yaml",
	"/usr/share/gofax/faxsession.yaml",
}

// sessionProfileYAML is the on-disk shape of a session profile.
type sessionProfileYAML struct {
	LocalID                string `yaml:"local_id"`
	Subaddress             string `yaml:"subaddress"`
	Password               string `yaml:"password"`
	ECMEnabled             bool   `yaml:"ecm_enabled"`
	ReceiverNotReadyCount  int    `yaml:"receiver_not_ready_count"`
	SampleRate             int    `yaml:"sample_rate"`
	NSFCountryCode         byte   `yaml:"nsf_country_code"`
	NSFVendor              string `yaml:"nsf_vendor"` // up to 3 ASCII chars
	Timers                 struct {
		T0Ms int `yaml:"t0_ms"`
		T1Ms int `yaml:"t1_ms"`
		T2Ms int `yaml:"t2_ms"`
		T3Ms int `yaml:"t3_ms"`
		T4Ms int `yaml:"t4_ms"`
		T5Ms int `yaml:"t5_ms"`
	} `yaml:"timers"`
}

// LoadSessionProfile searches sessionProfileSearchPath for a YAML profile
// and applies it on top of a zero-value FaxConfig, returning the result.
// A missing file at every search location is not an error: it simply
// yields the default FaxConfig, logged at debug level.
func LoadSessionProfile(logger interface {
	Debug(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
}) FaxConfig {
	var cfg FaxConfig

	var fp *os.File
	for _, location := range sessionProfileSearchPath {
		f, err := os.Open(location)
		if err == nil {
			fp = f
			defer fp.Close()
			break
		}
	}

	if fp == nil {
		if logger != nil {
			logger.Debug("no session profile found", "searched", sessionProfileSearchPath)
		}
		return cfg
	}

	data, err := io.ReadAll(fp)
	if err != nil {
		if logger != nil {
			logger.Warn("error reading session profile", "file", fp.Name(), "err", err)
		}
		return cfg
	}

	var profile sessionProfileYAML
	if err := yaml.Unmarshal(data, &profile); err != nil {
		if logger != nil {
			logger.Warn("error parsing session profile", "file", fp.Name(), "err", err)
		}
		return cfg
	}

	cfg.LocalID = profile.LocalID
	cfg.Subaddress = profile.Subaddress
	cfg.Password = profile.Password
	cfg.ECMEnabled = profile.ECMEnabled
	cfg.ReceiverNotReadyCount = profile.ReceiverNotReadyCount
	cfg.SampleRate = profile.SampleRate
	cfg.T0Ms = profile.Timers.T0Ms
	cfg.T1Ms = profile.Timers.T1Ms
	cfg.T2Ms = profile.Timers.T2Ms
	cfg.T3Ms = profile.Timers.T3Ms
	cfg.T4Ms = profile.Timers.T4Ms
	cfg.T5Ms = profile.Timers.T5Ms

	cfg.NSFVendor.CountryCode = profile.NSFCountryCode
	copy(cfg.NSFVendor.Vendor[:], profile.NSFVendor)

	return cfg
}
