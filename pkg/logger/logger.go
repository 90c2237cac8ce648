package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Init 初始化全局 zap logger，业务代码统一通过 zap.L() 使用。
// mode 为 "release" 时输出 JSON 格式并收敛到 Info 级别。
func Init(mode string) (err error) {
	var lg *zap.Logger
	if mode == "release" {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		lg, err = cfg.Build()
	} else {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		lg, err = cfg.Build()
	}
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(lg)
	return nil
}
