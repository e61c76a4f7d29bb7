package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"exam-proctor-be/pkg/proctor/detection"
	"exam-proctor-be/pkg/proctor/scorer"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	SMTP      SMTPConfig
	Proctor   ProctorConfig
	Detectors DetectorConfig
}

type AppConfig struct {
	Port               string
	Environment        string
	LogFilePath        string
	AlertLogFilePath   string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JwtSecret          string
}

type DatabaseConfig struct {
	Connection string
}

type SMTPConfig struct {
	Host       string
	Port       int
	Email      string
	Password   string
	SenderName string
	// SupervisorAddresses receive e-mail copies of evidence-backed alerts.
	SupervisorAddresses []string
}

// ProctorConfig carries every tunable of the fusion engine.
type ProctorConfig struct {
	AlertThreshold    float64
	EvidenceThreshold float64
	AbsenceThreshold  time.Duration
	AbsenceRefire     string // "once" | "every_poll"
	KindWeights       map[detection.Kind]int
	UnknownKindWeight int

	HistoryCapacity int
	FrameCapacity   int

	IdleTimeout   time.Duration
	SweepInterval time.Duration

	EvidenceDir       string
	EnableGazeTracing bool
	AlertTopic        string
}

type DetectorConfig struct {
	FaceBackend   string // "remote" | "disabled"
	ObjectBackend string // "remote" | "disabled"
	AudioBackend  string // "level" | "energy" | "remote" | "disabled"
	RemoteURL     string
	Timeout       time.Duration
	VoiceLevel    float64
	AnomalyLevel  float64
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, usage system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/app.log"),
			AlertLogFilePath:   getEnv("ALERT_LOG_FILE_PATH", "logs/alerts.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			JwtSecret:          getEnv("JWT_SECRET", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		SMTP: SMTPConfig{
			Host:                getEnv("SMTP_HOST", ""),
			Port:                getEnvAsInt("SMTP_PORT", 587),
			Email:               getEnv("SMTP_EMAIL", ""),
			Password:            getEnv("SMTP_PASSWORD", ""),
			SenderName:          getEnv("SMTP_SENDER_NAME", "Exam Proctor"),
			SupervisorAddresses: getEnvAsList("SUPERVISOR_ALERT_EMAILS"),
		},
		Proctor: ProctorConfig{
			AlertThreshold:    getEnvAsFloat("PROCTOR_ALERT_THRESHOLD", scorer.DefaultAlertThreshold),
			EvidenceThreshold: getEnvAsFloat("PROCTOR_EVIDENCE_THRESHOLD", scorer.DefaultEvidenceThreshold),
			AbsenceThreshold:  getEnvAsDuration("PROCTOR_ABSENCE_THRESHOLD", 10*time.Second),
			AbsenceRefire:     getEnv("PROCTOR_ABSENCE_REFIRE", "once"),
			KindWeights:       parseWeights(getEnv("PROCTOR_KIND_WEIGHTS", "")),
			UnknownKindWeight: getEnvAsInt("PROCTOR_UNKNOWN_KIND_WEIGHT", scorer.DefaultUnknownWeight),
			HistoryCapacity:   getEnvAsInt("PROCTOR_HISTORY_CAPACITY", 100),
			FrameCapacity:     getEnvAsInt("PROCTOR_FRAME_CAPACITY", 10),
			IdleTimeout:       getEnvAsDuration("PROCTOR_IDLE_TIMEOUT", 30*time.Minute),
			SweepInterval:     getEnvAsDuration("PROCTOR_SWEEP_INTERVAL", time.Minute),
			EvidenceDir:       getEnv("PROCTOR_EVIDENCE_DIR", "uploads/evidence"),
			EnableGazeTracing: getEnvAsBool("PROCTOR_ENABLE_GAZE_TRACKING", false),
			AlertTopic:        getEnv("PROCTOR_ALERT_TOPIC", "PROCTOR_ALERT_JOBS"),
		},
		Detectors: DetectorConfig{
			FaceBackend:   getEnv("DETECTOR_FACE_BACKEND", "remote"),
			ObjectBackend: getEnv("DETECTOR_OBJECT_BACKEND", "remote"),
			AudioBackend:  getEnv("DETECTOR_AUDIO_BACKEND", "level"),
			RemoteURL:     getEnv("DETECTOR_REMOTE_URL", "http://localhost:8500"),
			Timeout:       getEnvAsDuration("DETECTOR_TIMEOUT", 3*time.Second),
			VoiceLevel:    getEnvAsFloat("DETECTOR_VOICE_LEVEL", 50),
			AnomalyLevel:  getEnvAsFloat("DETECTOR_ANOMALY_LEVEL", 85),
		},
	}
}

// ScoringPolicy folds the configured overrides onto the reference weights.
func (p ProctorConfig) ScoringPolicy() scorer.Policy {
	policy := scorer.DefaultPolicy()
	policy.AlertThreshold = p.AlertThreshold
	policy.EvidenceThreshold = p.EvidenceThreshold
	policy.DefaultWeight = p.UnknownKindWeight
	for kind, w := range p.KindWeights {
		policy.Weights[kind] = w
	}
	return policy
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseFloat(strValue, 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

// getEnvAsDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if strValue == "" {
		return fallback
	}
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	if secs, err := strconv.Atoi(strValue); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseWeights reads "multiple_faces=10,phone_detected=8". Malformed pairs are skipped.
func parseWeights(raw string) map[detection.Kind]int {
	weights := make(map[detection.Kind]int)
	for _, pair := range strings.Split(raw, ",") {
		kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(kv) != 2 {
			continue
		}
		w, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil {
			log.Printf("[WARN] Ignoring weight for %q: %v", kv[0], err)
			continue
		}
		weights[detection.ParseKind(strings.TrimSpace(kv[0]))] = w
	}
	return weights
}
