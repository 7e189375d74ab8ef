package conf

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/filswan/go-swan-lib/logs"

	"github.com/jackiewangjingchun-cpu/wattcoin/constants"
)

var config *MarketNode

// MarketNode is the marketplace daemon config.
type MarketNode struct {
	API    API
	DB     DB
	MARKET MARKET
	CHAIN  CHAIN
	RAIL   RAIL
	REDIS  REDIS
}

type API struct {
	Port       int
	AdminToken string
}

type DB struct {
	Path string
}

type MARKET struct {
	HeartbeatTimeoutSec int
	JobTimeoutSec       int
	JobPageSize         int
	NodeShare           int
	TreasuryShare       int
	BurnShare           int
	MinStakeAmount      int64
	StakeMaxAgeHour     int
	CapabilityFile      string
}

type CHAIN struct {
	RpcUrl          string
	TokenContract   string
	TreasuryAddress string
}

type RAIL struct {
	PayoutUrl   string
	AccessToken string
	TimeoutSec  int
	ReviewUrl   string
}

type REDIS struct {
	RedisUrl      string
	RedisPassword string
}

func InitConfig(repoPath string) error {
	configFile := filepath.Join(repoPath, "config.toml")

	metaData, err := toml.DecodeFile(configFile, &config)
	if err != nil {
		return fmt.Errorf("failed load config file, path: %s, error: %w", configFile, err)
	}
	if !requiredFieldsAreGiven(metaData) {
		logs.GetLogger().Fatal("Required fields not given")
	}
	config.MARKET.applyDefaults()
	return nil
}

func GetConfig() *MarketNode {
	return config
}

func (m *MARKET) applyDefaults() {
	if m.HeartbeatTimeoutSec <= 0 {
		m.HeartbeatTimeoutSec = int(constants.HeartbeatTimeout / time.Second)
	}
	if m.JobTimeoutSec <= 0 {
		m.JobTimeoutSec = int(constants.JobTimeout / time.Second)
	}
	if m.JobPageSize <= 0 {
		m.JobPageSize = constants.JobPageSize
	}
	if m.NodeShare+m.TreasuryShare+m.BurnShare != 100 {
		m.NodeShare = constants.NodeShare
		m.TreasuryShare = constants.TreasuryShare
		m.BurnShare = constants.BurnShare
	}
	if m.MinStakeAmount <= 0 {
		m.MinStakeAmount = constants.MinStakeAmount
	}
	if m.StakeMaxAgeHour <= 0 {
		m.StakeMaxAgeHour = int(constants.StakeMaxAge / time.Hour)
	}
}

func (m *MARKET) HeartbeatTimeout() time.Duration {
	return time.Duration(m.HeartbeatTimeoutSec) * time.Second
}

func (m *MARKET) JobTimeout() time.Duration {
	return time.Duration(m.JobTimeoutSec) * time.Second
}

func (m *MARKET) StakeMaxAge() time.Duration {
	return time.Duration(m.StakeMaxAgeHour) * time.Hour
}

func (r *RAIL) Timeout() time.Duration {
	if r.TimeoutSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(r.TimeoutSec) * time.Second
}

func requiredFieldsAreGiven(metaData toml.MetaData) bool {
	requiredFields := [][]string{
		{"API"},
		{"DB"},
		{"MARKET"},
		{"CHAIN"},

		{"API", "Port"},
		{"DB", "Path"},

		{"CHAIN", "RpcUrl"},
		{"CHAIN", "TokenContract"},
		{"CHAIN", "TreasuryAddress"},
	}

	for _, v := range requiredFields {
		if !metaData.IsDefined(v...) {
			logs.GetLogger().Fatal("Required fields ", v)
		}
	}

	return true
}
