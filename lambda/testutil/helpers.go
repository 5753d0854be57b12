package testutil

import (
	"fmt"

	"github.com/google/uuid"
)

// テストで使用する固定のアカウントIDとAPI ID
const (
	TestAccountID = "123456789012"
	TestRestAPIID = "abc123"
	TestStage     = "test"
)

// GenerateUniqueID はプレフィックス付きのユニークIDを生成する。
// テスト間のデータ衝突を避けるために使う
func GenerateUniqueID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.New().String())
}

// TestMethodArn はテスト用のAPI Gateway Method ARNを生成する。
// デフォルトで GET /resource を返す
func TestMethodArn() (string, error) {
	return TestMethodArnWithPath("GET", "/resource")
}

// TestMethodArnWithPath は指定したメソッドとパスでMethod ARNを生成する
func TestMethodArnWithPath(method, path string) (string, error) {
	region, err := GetAWSRegion()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("arn:aws:execute-api:%s:%s:%s/%s/%s%s",
		region, TestAccountID, TestRestAPIID, TestStage, method, path), nil
}
