package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// setRequiredEnv makes every required key present; tests then tweak single values.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	for key, value := range map[string]string{
		configPathEnv:        "",
		targetHandleEnv:      "realDonaldTrump",
		truthBaseURLEnv:      "",
		truthUsernameEnv:     "watcher",
		truthPasswordEnv:     "secret",
		truthTokenEnv:        "",
		classifierBackendEnv: "",
		openAIKeyEnv:         "sk-test",
		openAIEndpointEnv:    "",
		alertDriverEnv:       "",
		ntfyServerEnv:        "",
		ntfyTopicEnv:         "market-alerts",
		storageDriverEnv:     "",
		storageFileEnv:       "",
		timezoneEnv:          "America/New_York",
		startHourEnv:         "",
		endHourEnv:           "",
		intervalEnv:          "",
		metricsAddrEnv:       "",
		logLevelEnv:          "",
	} {
		t.Setenv(key, value)
	}
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Empty(t, cfg.Fallbacks)

	require.Equal(t, "realDonaldTrump", cfg.TruthSocial.Handle)
	require.Equal(t, "https://truthsocial.com", cfg.TruthSocial.BaseURL)
	require.Equal(t, BackendOpenAI, cfg.Classifier.Backend)
	require.Equal(t, "gpt-4o-mini", cfg.Classifier.OpenAI.Model)
	require.Equal(t, DriverNtfy, cfg.Alerts.Driver)
	require.Equal(t, StorageFile, cfg.Storage.Driver)

	window := cfg.Schedule.Window()
	require.Equal(t, 7, window.StartHour)
	require.Equal(t, 23, window.EndHour)
	require.Equal(t, 300*time.Second, window.Interval)
	require.Equal(t, "America/New_York", window.Loc().String())
}

func TestLoadReportsEveryMissingSetting(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv(targetHandleEnv, "")
	t.Setenv(truthUsernameEnv, "")
	t.Setenv(truthPasswordEnv, "")
	t.Setenv(openAIKeyEnv, "")
	t.Setenv(ntfyTopicEnv, "")
	t.Setenv(timezoneEnv, "")

	_, err := Load()
	require.Error(t, err)
	for _, key := range []string{
		targetHandleEnv, truthUsernameEnv, truthPasswordEnv, openAIKeyEnv, ntfyTopicEnv, timezoneEnv,
	} {
		require.ErrorContains(t, err, key)
	}
}

func TestLoadTokenReplacesPassword(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv(truthUsernameEnv, "")
	t.Setenv(truthPasswordEnv, "")
	t.Setenv(truthTokenEnv, "pre-issued")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "pre-issued", cfg.TruthSocial.Token)
}

func TestLoadRejectsUnknownTimezone(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv(timezoneEnv, "Mars/Olympus_Mons")

	_, err := Load()
	require.ErrorContains(t, err, timezoneEnv)
}

func TestLoadRejectsUnknownDrivers(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv(classifierBackendEnv, "bard")
	t.Setenv(alertDriverEnv, "pager")
	t.Setenv(storageDriverEnv, "mongo")

	_, err := Load()
	require.ErrorContains(t, err, classifierBackendEnv)
	require.ErrorContains(t, err, alertDriverEnv)
	require.ErrorContains(t, err, storageDriverEnv)
}

func TestLoadTelegramNeedsNumericChat(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv(alertDriverEnv, "telegram")
	t.Setenv(telegramTokenEnv, "123:abc")
	t.Setenv(telegramChatIDEnv, "@channel")

	_, err := Load()
	require.ErrorContains(t, err, telegramChatIDEnv)

	t.Setenv(telegramChatIDEnv, "-100200300")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, DriverTelegram, cfg.Alerts.Driver)
}

func TestLoadWindowBoundsFallback(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv(startHourEnv, "23")
	t.Setenv(endHourEnv, "7")

	cfg, err := Load()
	require.NoError(t, err)

	window := cfg.Schedule.Window()
	require.Equal(t, 7, window.StartHour)
	require.Equal(t, 23, window.EndHour)
	require.Len(t, cfg.Fallbacks, 1)
}

func TestLoadIntervalFallback(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv(intervalEnv, "abc")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 300*time.Second, cfg.Schedule.Window().Interval)
	require.Len(t, cfg.Fallbacks, 1)
	require.Contains(t, cfg.Fallbacks[0], intervalEnv)

	t.Setenv(intervalEnv, "0")
	cfg, err = Load()
	require.NoError(t, err)
	require.Equal(t, 300*time.Second, cfg.Schedule.Window().Interval)
}

func TestLoadNonIntegerHourUsesThatDefault(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv(startHourEnv, "9")
	t.Setenv(endHourEnv, "late")

	cfg, err := Load()
	require.NoError(t, err)

	window := cfg.Schedule.Window()
	require.Equal(t, 9, window.StartHour)
	require.Equal(t, 23, window.EndHour)
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := []byte(`
truthsocial:
  handle: "@someoneElse"
  pageLimit: 20
classifier:
  backend: http
  service:
    url: http://classifier.local/
    timeout: 5s
storage:
  driver: sqlite
  dsn: /var/lib/impactwatcher/cursor.db
schedule:
  startHour: 6
  endHour: 20
  intervalSeconds: 120
metrics:
  addr: ":9090"
`)
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	t.Setenv(configPathEnv, path)
	t.Setenv(targetHandleEnv, "")
	t.Setenv(endHourEnv, "21")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "someoneElse", cfg.TruthSocial.Handle)
	require.Equal(t, 20, cfg.TruthSocial.PageLimit)
	require.Equal(t, BackendHTTP, cfg.Classifier.Backend)
	require.Equal(t, "http://classifier.local", cfg.Classifier.Service.URL)
	require.Equal(t, 5*time.Second, cfg.Classifier.Service.Timeout)
	require.Equal(t, StorageSQLite, cfg.Storage.Driver)
	require.Equal(t, ":9090", cfg.Metrics.Addr)

	window := cfg.Schedule.Window()
	require.Equal(t, 6, window.StartHour)
	require.Equal(t, 21, window.EndHour)
	require.Equal(t, 120*time.Second, window.Interval)
}

func TestLoadUnreadableConfigFile(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv(configPathEnv, filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := Load()
	require.ErrorContains(t, err, "read config")
}

func TestLoadEnvFiles(t *testing.T) {
	const key = "IMPACT_WATCHER_TEST_DOTENV"
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))

	dir := t.TempDir()
	local := filepath.Join(dir, ".env.local")
	shared := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(local, []byte(key+"=local\n"), 0o600))
	require.NoError(t, os.WriteFile(shared, []byte(key+"=shared\n"), 0o600))

	loaded := LoadEnvFiles(local, filepath.Join(dir, "absent.env"), shared)
	require.Equal(t, []string{local, shared}, loaded)
	require.Equal(t, "local", os.Getenv(key))
}
