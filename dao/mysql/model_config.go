package mysql

import (
	"context"
	"database/sql"

	"xhs-creator/pkg/generator"
)

// 模型注册表。api_key 不随 GetModelInfo 返回，密钥单独读取。

type modelConfigRow struct {
	ModelID      string `db:"model_id"`
	Provider     string `db:"provider"`
	EndpointType string `db:"endpoint_type"`
	BaseURL      string `db:"base_url"`
	TextModelID  string `db:"text_model_id"`
	APIKey       string `db:"api_key"`
	IsActive     bool   `db:"is_active"`
	Enabled      bool   `db:"enabled"`
}

// GetModelInfo 查询模型配置，被禁用的模型视为不存在
func (s *Store) GetModelInfo(ctx context.Context, modelID string) (*generator.ModelInfo, error) {
	row := &modelConfigRow{}
	query := `SELECT model_id, provider, endpoint_type, base_url, text_model_id, api_key, is_active, enabled
		FROM t_model_configs WHERE model_id = ?`
	if err := s.db.GetContext(ctx, row, query, modelID); err != nil {
		if err == sql.ErrNoRows {
			return nil, generator.ErrModelDisabled
		}
		return nil, err
	}
	if !row.Enabled {
		return nil, generator.ErrModelDisabled
	}
	return &generator.ModelInfo{
		ModelID:      row.ModelID,
		Provider:     row.Provider,
		EndpointType: row.EndpointType,
		BaseURL:      row.BaseURL,
		TextModelID:  row.TextModelID,
	}, nil
}

// GetProviderSecret 读取模型对应服务商的 API Key
func (s *Store) GetProviderSecret(ctx context.Context, modelID string) (string, error) {
	var key string
	query := `SELECT api_key FROM t_model_configs WHERE model_id = ? AND enabled = 1`
	if err := s.db.GetContext(ctx, &key, query, modelID); err != nil {
		if err == sql.ErrNoRows {
			return "", generator.ErrModelDisabled
		}
		return "", err
	}
	return key, nil
}

// GetActiveModelID 当前进程级选中的生成模型
func (s *Store) GetActiveModelID(ctx context.Context) (string, error) {
	var modelID string
	query := `SELECT model_id FROM t_model_configs WHERE is_active = 1 AND enabled = 1 LIMIT 1`
	if err := s.db.GetContext(ctx, &modelID, query); err != nil {
		if err == sql.ErrNoRows {
			return "", generator.ErrModelDisabled
		}
		return "", err
	}
	return modelID, nil
}
