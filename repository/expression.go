package repository

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// buildSetExpression renders updates as "SET k = :vN, ..." with keys in
// sorted order so the same update always yields the same expression.
func buildSetExpression(updates map[string]interface{}) (string, map[string]types.AttributeValue, error) {
	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	values := make(map[string]types.AttributeValue, len(keys))
	for i, k := range keys {
		ph := fmt.Sprintf(":v%d", i)
		av, err := attributevalue.Marshal(updates[k])
		if err != nil {
			return "", nil, fmt.Errorf("marshal update value: %w", err)
		}
		values[ph] = av
		parts = append(parts, fmt.Sprintf("%s = %s", k, ph))
	}
	return "SET " + strings.Join(parts, ", "), values, nil
}
