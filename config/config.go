/*

Warden - Lumichat Moderation Backend
Copyright (C) 2025 Lumichat Authors, https://github.com/lumichat

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.

Warden is provided “as is” without warranty of any kind, either expressed or implied.
Use at your own risk. The maintainers shall not be liable for any damages or data loss
resulting from the use or misuse of this software.
*/

package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/docker/go-units"
	root "github.com/lumichat/warden"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const noticeTemplate = " %s version %s. Copyright (C) <%s> <%s>. This program comes with ABSOLUTELY NO WARRANTY; This is free software, and you are welcome to redistribute it under certain conditions.\n\n\n"

const defaultUploadLimit = "8MiB"

var configSingleton config

func init() {
	pflag.String("database.dir", "storage", "Database directory name")
	pflag.String("database.seed", "", "Database seed for deterministic encryption credentials")
	pflag.String("server.host", "localhost", "Server host")
	pflag.String("server.port", "4080", "Server port")
	pflag.Duration("seal.user.ttl", 30*time.Minute, "How long a sealed user stays sealed")
	pflag.Duration("seal.addr.ttl", time.Hour, "How long a sealed address stays sealed")
	pflag.String("auth.endpoint", "http://localhost:9096/internal/token", "Auth service token endpoint")
	pflag.String("auth.secret", "", "Auth service shared secret")
	pflag.Duration("auth.margin", 30*time.Second, "Safety margin subtracted from token lifetime")
	pflag.String("emoticon.origin", "https://gallery.lumichat.dev/emoticons", "Emoticon gallery origin URL")
	pflag.Duration("emoticon.ttl", 12*time.Hour, "Emoticon cache time-to-live")
	pflag.Int("emoticon.cachesize", 512, "Emoticon cache max entries")
	pflag.String("upload.limit", defaultUploadLimit, "Upload size limit, human readable")
	pflag.String("logging.level", "info", "Logging level")
	pflag.String("logging.format", "text", "Logging format: 'text' or 'json'")

	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	pflag.Parse()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindPFlags(pflag.CommandLine)

	version := root.GetVersion()
	fmt.Printf(noticeTemplate, strings.ToUpper(root.Name), version, "2025", "Lumichat Authors")

	host := viper.GetString("server.host")
	port := viper.GetString("server.port")
	dbDir := viper.GetString("database.dir")

	seed := strings.TrimSpace(viper.GetString("database.seed"))
	if seed == "" {
		seed = "seed" + dbDir + host + port
	}
	appPath := getAppPath()

	dbPath := filepath.Join(appPath, strings.TrimSpace(dbDir))

	configSingleton = config{
		Version: semver.MustParse(strings.TrimSpace(version)),
		Database: database{
			Path: dbPath,
			Seed: seed,
		},
		Server: server{
			Host: host,
			Port: port,
		},
		Seal: seal{
			UserTTL: viper.GetDuration("seal.user.ttl"),
			AddrTTL: viper.GetDuration("seal.addr.ttl"),
		},
		Auth: auth{
			Endpoint: strings.TrimSpace(viper.GetString("auth.endpoint")),
			Secret:   strings.TrimSpace(viper.GetString("auth.secret")),
			Margin:   viper.GetDuration("auth.margin"),
		},
		Emoticon: emoticon{
			Origin:    strings.TrimSpace(viper.GetString("emoticon.origin")),
			CacheTTL:  viper.GetDuration("emoticon.ttl"),
			CacheSize: viper.GetInt("emoticon.cachesize"),
		},
		Upload:  upload{Limit: viper.GetString("upload.limit")},
		Logging: logging{Level: strings.TrimSpace(viper.GetString("logging.level")), Format: strings.TrimSpace(viper.GetString("logging.format"))},
	}
}

func Config() config {
	return configSingleton
}

type config struct {
	Version  *semver.Version
	Database database
	Server   server
	Seal     seal
	Auth     auth
	Emoticon emoticon
	Upload   upload
	Logging  logging
}

type database struct {
	Path string
	Seed string
}
type seal struct {
	UserTTL time.Duration
	AddrTTL time.Duration
}
type auth struct {
	Endpoint string
	Secret   string
	Margin   time.Duration
}
type emoticon struct {
	Origin    string
	CacheTTL  time.Duration
	CacheSize int
}
type upload struct {
	Limit string
}
type logging struct {
	Level  string
	Format string
}
type server struct {
	Host string
	Port string
}

func (s server) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

func (u upload) LimitBytes() int64 {
	limit, err := units.RAMInBytes(u.Limit)
	if err != nil {
		log.Errorf("config: unparsable upload limit %q: %v", u.Limit, err)
		limit, _ = units.RAMInBytes(defaultUploadLimit)
	}
	return limit
}

func getAppPath() string {
	var dbPath string

	switch runtime.GOOS {
	case "windows":
		// %LOCALAPPDATA% Windows
		appData := os.Getenv("LOCALAPPDATA") // C:\Users\{username}\AppData\Local
		if appData == "" {
			log.Fatal("failed to get path to LOCALAPPDATA")
		}
		dbPath = filepath.Join(appData, "wardendata")

	case "darwin", "linux", "android":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			log.Fatal(err)
		}
		dbPath = filepath.Join(homeDir, ".wardendata")

	default:
		log.Fatal("unsupported OS")
	}

	err := os.MkdirAll(dbPath, 0750)
	if err != nil {
		log.Fatal(err)
	}

	return dbPath
}
