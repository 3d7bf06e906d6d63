package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Simulation  SimulationConfig  `mapstructure:"simulation"`
	Game        GameConfig        `mapstructure:"game"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
}

type ServerConfig struct {
	HTTPAddress    string `mapstructure:"http_address"`
	RPCAddress     string `mapstructure:"rpc_address"`
	MetricsAddress string `mapstructure:"metrics_address"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// SimulationConfig 物理模拟子进程配置
type SimulationConfig struct {
	NodeExecutable string        `mapstructure:"node_executable"`
	ScriptPath     string        `mapstructure:"script_path"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxInputBytes  int           `mapstructure:"max_input_bytes"`
}

// GameConfig 新游戏的默认设置
type GameConfig struct {
	MaxPlayers      int `mapstructure:"max_players"`
	BoardSize       int `mapstructure:"board_size"`
	BoardShrink     int `mapstructure:"board_shrink"`
	TurnInterval    int `mapstructure:"turn_interval"`
	StartDelay      int `mapstructure:"start_delay"`
	PiecesPerPlayer int `mapstructure:"pieces_per_player"`
	// 候选游戏 ID 的租约时长（秒）
	GameIDLeaseSeconds int `mapstructure:"game_id_lease_seconds"`
}

type MaintenanceConfig struct {
	GameIDPoolTarget int `mapstructure:"game_id_pool_target"`
	StaleGameDays    int `mapstructure:"stale_game_days"`
	StalePlayerDays  int `mapstructure:"stale_player_days"`
}

func LoadConfig(path string) (config *Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("server.http_address", ":8080")
	viper.SetDefault("server.rpc_address", ":8081")
	viper.SetDefault("server.metrics_address", ":9091")
	viper.SetDefault("simulation.node_executable", "node")
	viper.SetDefault("simulation.script_path", "static/headless.mjs")
	viper.SetDefault("simulation.timeout", 10*time.Second)
	viper.SetDefault("simulation.max_input_bytes", 200_000)
	viper.SetDefault("game.max_players", 10)
	viper.SetDefault("game.board_size", 800)
	viper.SetDefault("game.board_shrink", 50)
	viper.SetDefault("game.turn_interval", 86400)
	viper.SetDefault("game.start_delay", 86400)
	viper.SetDefault("game.pieces_per_player", 4)
	viper.SetDefault("game.game_id_lease_seconds", 120)
	viper.SetDefault("maintenance.game_id_pool_target", 200)
	viper.SetDefault("maintenance.stale_game_days", 30)
	viper.SetDefault("maintenance.stale_player_days", 30)

	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
