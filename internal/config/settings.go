package config

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/park285/tessu-bridge/internal/identity"
	"github.com/park285/tessu-bridge/internal/roster"
	yaml "gopkg.in/yaml.v3"
)

// Settings is the user-editable settings file.
type Settings struct {
	General                General           `yaml:"general"`
	NameMappings           map[string]string `yaml:"name_mappings"`
	VoiceClient            VoiceClient       `yaml:"voice_client"`
	VoiceChatNotifications Notifications     `yaml:"voice_chat_notifications"`
	MinimapNotifications   Minimap           `yaml:"minimap_notifications"`
}

type General struct {
	LogLevel             string   `yaml:"log_level"`
	CheckInterval        float64  `yaml:"ini_check_interval"`
	SpeakStopDelay       float64  `yaml:"speak_stop_delay"`
	UseMetadata          bool     `yaml:"get_wot_nick_from_ts_metadata"`
	UpdateCacheInReplays bool     `yaml:"update_cache_in_replays"`
	NickSearch           bool     `yaml:"ts_nick_search_enabled"`
	NickExtractPatterns  []string `yaml:"nick_extract_patterns"`
	MatchClanMembers     bool     `yaml:"match_clan_members"`
	MatchFriends         bool     `yaml:"match_friends"`
}

type VoiceClient struct {
	Host            string  `yaml:"host"`
	Port            int     `yaml:"port"`
	PollingInterval float64 `yaml:"polling_interval"`
}

type Notifications struct {
	Enabled     bool `yaml:"enabled"`
	SelfEnabled bool `yaml:"self_enabled"`
}

type Minimap struct {
	Enabled        bool    `yaml:"enabled"`
	SelfEnabled    bool    `yaml:"self_enabled"`
	Action         string  `yaml:"action"`
	RepeatInterval float64 `yaml:"repeat_interval"`
}

func DefaultSettings() *Settings {
	return &Settings{
		General: General{
			LogLevel:            "info",
			CheckInterval:       5,
			SpeakStopDelay:      1,
			UseMetadata:         true,
			NickSearch:          true,
			NickExtractPatterns: []string{},
			MatchClanMembers:    true,
			MatchFriends:        true,
		},
		NameMappings: map[string]string{},
		VoiceClient: VoiceClient{
			Host:            "localhost",
			Port:            25639,
			PollingInterval: 0.1,
		},
		VoiceChatNotifications: Notifications{Enabled: true, SelfEnabled: true},
		MinimapNotifications: Minimap{
			Enabled:        true,
			SelfEnabled:    true,
			Action:         "attackSender",
			RepeatInterval: 3.5,
		},
	}
}

// ParseSettings overlays raw YAML on the defaults. Missing sections keep
// their default values.
func ParseSettings(raw []byte) (*Settings, error) {
	s := DefaultSettings()
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := yaml.Unmarshal(raw, s); err != nil {
			return nil, fmt.Errorf("parse settings: %w", err)
		}
	}
	s.normalize()
	return s, nil
}

// LoadSettings reads path, creating it with defaults when it does not exist.
func LoadSettings(path string) (*Settings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s := DefaultSettings()
			return s, SaveSettings(path, s)
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}
	return ParseSettings(raw)
}

func SaveSettings(path string, s *Settings) error {
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return err
	}
	raw, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return os.WriteFile(path, raw, 0o644)
}

func (s *Settings) normalize() {
	def := DefaultSettings()
	if s.General.CheckInterval <= 0 {
		s.General.CheckInterval = def.General.CheckInterval
	}
	if s.General.SpeakStopDelay < 0 {
		s.General.SpeakStopDelay = 0
	}
	if s.MinimapNotifications.RepeatInterval <= 0 {
		s.MinimapNotifications.RepeatInterval = def.MinimapNotifications.RepeatInterval
	}
	if strings.TrimSpace(s.MinimapNotifications.Action) == "" {
		s.MinimapNotifications.Action = def.MinimapNotifications.Action
	}
	if s.VoiceClient.PollingInterval <= 0 {
		s.VoiceClient.PollingInterval = def.VoiceClient.PollingInterval
	}
	if strings.TrimSpace(s.VoiceClient.Host) == "" {
		s.VoiceClient.Host = def.VoiceClient.Host
	}
	if s.VoiceClient.Port <= 0 || s.VoiceClient.Port > 65535 {
		s.VoiceClient.Port = def.VoiceClient.Port
	}
	if s.NameMappings == nil {
		s.NameMappings = map[string]string{}
	}
}

func seconds(v float64) time.Duration { return time.Duration(v * float64(time.Second)) }

func (s *Settings) CheckInterval() time.Duration  { return seconds(s.General.CheckInterval) }
func (s *Settings) SpeakStopDelay() time.Duration { return seconds(s.General.SpeakStopDelay) }
func (s *Settings) MarkerRepeatInterval() time.Duration {
	return seconds(s.MinimapNotifications.RepeatInterval)
}

// VoiceRetryInterval is the first delay before the voice link is dialed
// again after a failure.
func (s *Settings) VoiceRetryInterval() time.Duration {
	return seconds(s.VoiceClient.PollingInterval)
}

func (s *Settings) voiceAddr() string {
	return net.JoinHostPort(strings.TrimSpace(s.VoiceClient.Host), strconv.Itoa(s.VoiceClient.Port))
}

// VoiceBaseURL is the REST root of the voice client companion.
func (s *Settings) VoiceBaseURL() string { return "http://" + s.voiceAddr() }

// VoiceWSURL is the event feed of the voice client companion.
func (s *Settings) VoiceWSURL() string { return "ws://" + s.voiceAddr() + "/events" }

// ResolverConfig compiles the matching configuration of this settings
// snapshot.
func (s *Settings) ResolverConfig() identity.Config {
	return identity.Config{
		Patterns: identity.CompilePatterns(s.General.NickExtractPatterns),
		Aliases:  identity.NewAliasTable(s.NameMappings),
		Options: identity.Options{
			UseMetadata:   s.General.UseMetadata,
			UseNickSearch: s.General.NickSearch,
		},
	}
}

// PoolFlags selects roster sources. Battle and pre-battle rosters are
// always searched.
func (s *Settings) PoolFlags() roster.Flags {
	return roster.Flags{
		Battle:    true,
		PreBattle: true,
		Clan:      s.General.MatchClanMembers,
		Friends:   s.General.MatchFriends,
	}
}

func ensureDir(dir string) error {
	if strings.TrimSpace(dir) == "" || dir == "." {
		return nil
	}
	if _, err := os.Stat(dir); err == nil {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
