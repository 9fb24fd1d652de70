package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// 房间人数上限（含托管玩家）
const MaxSeats = 10

// 计分策略：断线宽限期内的玩家在判分时如何记录
const (
	GracePolicyZero    = "zero"    // 记为未作答，本轮计入已玩轮数
	GracePolicyExclude = "exclude" // 本轮不计入该玩家的已玩轮数
)

// Config 服务端配置
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	NATS      NATSConfig      `yaml:"nats"`
	Log       LogConfig       `yaml:"log"`
	Game      GameConfig      `yaml:"game"`
	Security  SecurityConfig  `yaml:"security"`
	Questions QuestionsConfig `yaml:"questions"`
	Rooms     []RoomConfig    `yaml:"rooms"`
}

// ServerConfig WebSocket 服务器配置
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	MaxConnections int    `yaml:"max_connections"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// NATSConfig 事件总线配置，URL 为空时不启用
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
	File   string `yaml:"file"`
}

// QuestionsConfig 题库配置
type QuestionsConfig struct {
	File string `yaml:"file"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	AllowedOrigins []string           `yaml:"allowed_origins"`
	AllowedIPs     []string           `yaml:"allowed_ips"` // 非空时只放行名单内的 IP
	BlockedIPs     []string           `yaml:"blocked_ips"`
	RateLimit      RateLimitConfig    `yaml:"rate_limit"`
	MessageLimit   MessageLimitConfig `yaml:"message_limit"`
}

// RateLimitConfig 建立连接的频率限制（按 IP）
type RateLimitConfig struct {
	MaxPerSecond int `yaml:"max_per_second"`
	MaxPerMinute int `yaml:"max_per_minute"`
	BanDuration  int `yaml:"ban_duration"` // 秒
}

// BanDurationTime 封禁时长
func (c RateLimitConfig) BanDurationTime() time.Duration {
	return time.Duration(c.BanDuration) * time.Second
}

// MessageLimitConfig 消息频率限制
type MessageLimitConfig struct {
	MaxPerSecond int `yaml:"max_per_second"`
}

// GameConfig 游戏配置（时间单位见字段注释）
type GameConfig struct {
	GracePeriod     int     `yaml:"grace_period"`      // 断线宽限期（秒）
	Lobby           int     `yaml:"lobby"`             // 大厅阶段（秒）
	Countdown       int     `yaml:"countdown"`         // 开局倒计时（秒）
	Results         int     `yaml:"results"`           // 每轮结果展示（秒）
	SessionResults  int     `yaml:"session_results"`   // 终局结果展示（秒）
	StopTimeout     int     `yaml:"stop_timeout"`      // 调度器关闭等待（秒）
	ReconnectWindow int     `yaml:"reconnect_window"`  // 重连令牌有效期（秒）
	EventBuffer     int     `yaml:"event_buffer"`      // 每局保留的事件数
	ClockSyncAlpha  float64 `yaml:"clock_sync_alpha"`  // 时钟同步 EWMA 系数
	RetryAttempts   int     `yaml:"retry_attempts"`    // 外部依赖重试次数
	RetryBackoffMs  int     `yaml:"retry_backoff_ms"`  // 首次重试退避（毫秒）
	GracePolicy     string  `yaml:"grace_policy"`      // zero / exclude
	TakeoverOnGrace *bool   `yaml:"takeover_on_grace"` // 宽限期结束后托管接管；不填时随房间的 allow_synthetic_fill
	BaseScore       int     `yaml:"base_score"`        // 答对基础分
	SpeedBonus      int     `yaml:"speed_bonus"`       // 速度加成上限
	SyntheticMinMs  int     `yaml:"synthetic_min_ms"`  // 托管玩家最短思考时间
	SyntheticMaxMs  int     `yaml:"synthetic_max_ms"`  // 托管玩家最长思考时间
	SyntheticHitPct int     `yaml:"synthetic_hit_pct"` // 托管玩家正确率（百分比）
}

// RoomConfig 常驻房间配置，加载后只读
type RoomConfig struct {
	ID                 string `yaml:"id"`
	Name               string `yaml:"name"`
	Category           string `yaml:"category"`
	MinParticipants    int    `yaml:"min_participants"`
	MaxParticipants    int    `yaml:"max_participants"`
	MinHumans          int    `yaml:"min_humans"`
	Rounds             int    `yaml:"rounds"`
	RoundTime          int    `yaml:"round_time"`   // 每题作答时间（秒）
	Intermission       int    `yaml:"intermission"` // 间歇期（秒）
	AllowSyntheticFill bool   `yaml:"allow_synthetic_fill"`
	Inactive           bool   `yaml:"inactive"`
}

// GracePeriodDuration 返回断线宽限期
func (c *GameConfig) GracePeriodDuration() time.Duration {
	return time.Duration(c.GracePeriod) * time.Second
}

// LobbyDuration 返回大厅阶段时长
func (c *GameConfig) LobbyDuration() time.Duration {
	return time.Duration(c.Lobby) * time.Second
}

// CountdownDuration 返回开局倒计时时长
func (c *GameConfig) CountdownDuration() time.Duration {
	return time.Duration(c.Countdown) * time.Second
}

// ResultsDuration 返回每轮结果展示时长
func (c *GameConfig) ResultsDuration() time.Duration {
	return time.Duration(c.Results) * time.Second
}

// SessionResultsDuration 返回终局结果展示时长
func (c *GameConfig) SessionResultsDuration() time.Duration {
	return time.Duration(c.SessionResults) * time.Second
}

// StopTimeoutDuration 返回调度器关闭等待时长
func (c *GameConfig) StopTimeoutDuration() time.Duration {
	return time.Duration(c.StopTimeout) * time.Second
}

// ReconnectWindowDuration 返回重连令牌有效期
func (c *GameConfig) ReconnectWindowDuration() time.Duration {
	return time.Duration(c.ReconnectWindow) * time.Second
}

// RetryBackoffDuration 返回首次重试退避
func (c *GameConfig) RetryBackoffDuration() time.Duration {
	return time.Duration(c.RetryBackoffMs) * time.Millisecond
}

// RoundDuration 返回每题作答时长
func (r *RoomConfig) RoundDuration() time.Duration {
	return time.Duration(r.RoundTime) * time.Second
}

// IntermissionDuration 返回间歇期时长
func (r *RoomConfig) IntermissionDuration() time.Duration {
	return time.Duration(r.Intermission) * time.Second
}

// Load 加载配置文件
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.Rooms = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults 补齐缺省值
func (c *Config) applyDefaults() {
	def := Default()

	if c.Server.Host == "" {
		c.Server.Host = def.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Server.MaxConnections == 0 {
		c.Server.MaxConnections = def.Server.MaxConnections
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = def.Redis.Addr
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = def.NATS.SubjectPrefix
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Questions.File == "" {
		c.Questions.File = def.Questions.File
	}
	if c.Security.RateLimit.MaxPerSecond == 0 {
		c.Security.RateLimit = def.Security.RateLimit
	}
	if c.Security.MessageLimit.MaxPerSecond == 0 {
		c.Security.MessageLimit.MaxPerSecond = def.Security.MessageLimit.MaxPerSecond
	}
	c.Game.fill(def.Game)

	for i := range c.Rooms {
		r := &c.Rooms[i]
		if r.Name == "" {
			r.Name = r.ID
		}
		if r.MinParticipants == 0 {
			r.MinParticipants = 1
		}
		if r.MaxParticipants == 0 {
			r.MaxParticipants = MaxSeats
		}
		if r.MinHumans == 0 {
			r.MinHumans = 1
		}
		if r.Rounds == 0 {
			r.Rounds = 5
		}
		if r.RoundTime == 0 {
			r.RoundTime = 10
		}
		if r.Intermission == 0 {
			r.Intermission = 30
		}
	}
}

func (g *GameConfig) fill(def GameConfig) {
	setInt := func(v *int, d int) {
		if *v == 0 {
			*v = d
		}
	}
	setInt(&g.GracePeriod, def.GracePeriod)
	setInt(&g.Lobby, def.Lobby)
	setInt(&g.Countdown, def.Countdown)
	setInt(&g.Results, def.Results)
	setInt(&g.SessionResults, def.SessionResults)
	setInt(&g.StopTimeout, def.StopTimeout)
	setInt(&g.ReconnectWindow, def.ReconnectWindow)
	setInt(&g.EventBuffer, def.EventBuffer)
	setInt(&g.RetryAttempts, def.RetryAttempts)
	setInt(&g.RetryBackoffMs, def.RetryBackoffMs)
	setInt(&g.BaseScore, def.BaseScore)
	setInt(&g.SpeedBonus, def.SpeedBonus)
	setInt(&g.SyntheticMinMs, def.SyntheticMinMs)
	setInt(&g.SyntheticMaxMs, def.SyntheticMaxMs)
	setInt(&g.SyntheticHitPct, def.SyntheticHitPct)
	if g.ClockSyncAlpha == 0 {
		g.ClockSyncAlpha = def.ClockSyncAlpha
	}
	if g.GracePolicy == "" {
		g.GracePolicy = def.GracePolicy
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error

	switch c.Game.GracePolicy {
	case GracePolicyZero, GracePolicyExclude:
	default:
		errs = append(errs, fmt.Errorf("game.grace_policy: unknown policy %q", c.Game.GracePolicy))
	}
	if c.Game.ClockSyncAlpha <= 0 || c.Game.ClockSyncAlpha > 1 {
		errs = append(errs, fmt.Errorf("game.clock_sync_alpha must be in (0,1], got %v", c.Game.ClockSyncAlpha))
	}
	if c.Game.SyntheticMaxMs < c.Game.SyntheticMinMs {
		errs = append(errs, errors.New("game.synthetic_max_ms must be >= synthetic_min_ms"))
	}

	seen := make(map[string]bool, len(c.Rooms))
	for i, r := range c.Rooms {
		if r.ID == "" {
			errs = append(errs, fmt.Errorf("rooms[%d]: id is required", i))
			continue
		}
		if seen[r.ID] {
			errs = append(errs, fmt.Errorf("rooms[%d]: duplicate id %q", i, r.ID))
		}
		seen[r.ID] = true

		if r.MaxParticipants > MaxSeats {
			errs = append(errs, fmt.Errorf("room %s: max_participants %d exceeds %d", r.ID, r.MaxParticipants, MaxSeats))
		}
		if r.MinParticipants < 1 || r.MinParticipants > r.MaxParticipants {
			errs = append(errs, fmt.Errorf("room %s: min_participants must be in [1,%d]", r.ID, r.MaxParticipants))
		}
		if r.MinHumans < 1 || r.MinHumans > r.MaxParticipants {
			errs = append(errs, fmt.Errorf("room %s: min_humans must be in [1,%d]", r.ID, r.MaxParticipants))
		}
		if r.Rounds < 1 || r.RoundTime < 1 || r.Intermission < 1 {
			errs = append(errs, fmt.Errorf("room %s: rounds, round_time and intermission must be positive", r.ID))
		}
	}
	return errors.Join(errs...)
}

// ApplyEnv 使用 QUIZ_* 环境变量覆盖配置
func (c *Config) ApplyEnv() {
	if v := os.Getenv("QUIZ_SERVER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("QUIZ_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("QUIZ_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("QUIZ_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("QUIZ_NATS_URL"); v != "" {
		c.NATS.URL = v
	}
	if v := os.Getenv("QUIZ_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("QUIZ_QUESTIONS_FILE"); v != "" {
		c.Questions.File = v
	}
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           1780,
			MaxConnections: 5000,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		NATS: NATSConfig{
			SubjectPrefix: "quiz.rooms",
		},
		Log: LogConfig{
			Level: "info",
		},
		Questions: QuestionsConfig{
			File: "configs/questions.yaml",
		},
		Security: SecurityConfig{
			RateLimit:    RateLimitConfig{MaxPerSecond: 5, MaxPerMinute: 60, BanDuration: 60},
			MessageLimit: MessageLimitConfig{MaxPerSecond: 20},
		},
		Game: GameConfig{
			GracePeriod:     10,
			Lobby:           5,
			Countdown:       3,
			Results:         5,
			SessionResults:  10,
			StopTimeout:     15,
			ReconnectWindow: 120,
			EventBuffer:     256,
			ClockSyncAlpha:  0.2,
			RetryAttempts:   3,
			RetryBackoffMs:  200,
			GracePolicy:     GracePolicyZero,
			BaseScore:       500,
			SpeedBonus:      500,
			SyntheticMinMs:  1500,
			SyntheticMaxMs:  7000,
			SyntheticHitPct: 60,
		},
		Rooms: []RoomConfig{
			{
				ID:                 "general",
				Name:               "General Knowledge",
				Category:           "general",
				MinParticipants:    2,
				MaxParticipants:    10,
				MinHumans:          1,
				Rounds:             5,
				RoundTime:          10,
				Intermission:       30,
				AllowSyntheticFill: true,
			},
		},
	}
}
