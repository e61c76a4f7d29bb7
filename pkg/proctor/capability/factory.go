package capability

import (
	"fmt"
	"time"
)

const (
	BackendRemote   = "remote"
	BackendDisabled = "disabled"
	BackendLevel    = "level"
	BackendEnergy   = "energy"
)

type Config struct {
	FaceBackend   string
	ObjectBackend string
	AudioBackend  string

	RemoteURL     string
	RemoteTimeout time.Duration

	VoiceLevel   float64
	AnomalyLevel float64
}

// Build picks one implementation per capability. Unknown backend names are
// configuration errors.
func Build(cfg Config) (Set, error) {
	var remote *RemoteClient
	remoteClient := func() (*RemoteClient, error) {
		if cfg.RemoteURL == "" {
			return nil, fmt.Errorf("remote capability backend requires a base URL")
		}
		if remote == nil {
			remote = NewRemoteClient(cfg.RemoteURL, cfg.RemoteTimeout)
		}
		return remote, nil
	}

	var set Set

	switch cfg.FaceBackend {
	case BackendRemote:
		c, err := remoteClient()
		if err != nil {
			return Set{}, err
		}
		set.Faces = c
	case BackendDisabled, "":
		set.Faces = Disabled{}
	default:
		return Set{}, fmt.Errorf("unsupported face backend: %s", cfg.FaceBackend)
	}

	switch cfg.ObjectBackend {
	case BackendRemote:
		c, err := remoteClient()
		if err != nil {
			return Set{}, err
		}
		set.Objects = c
	case BackendDisabled, "":
		set.Objects = Disabled{}
	default:
		return Set{}, fmt.Errorf("unsupported object backend: %s", cfg.ObjectBackend)
	}

	level := NewLevelAnalyzer(cfg.VoiceLevel, cfg.AnomalyLevel)
	switch cfg.AudioBackend {
	case BackendLevel, "":
		set.Audio = level
	case BackendEnergy:
		set.Audio = NewEnergyAnalyzer(level)
	case BackendRemote:
		c, err := remoteClient()
		if err != nil {
			return Set{}, err
		}
		set.Audio = c
	case BackendDisabled:
		set.Audio = Disabled{}
	default:
		return Set{}, fmt.Errorf("unsupported audio backend: %s", cfg.AudioBackend)
	}

	return set, nil
}
