package milvus

import (
	"fmt"
	"maps"
	"reflect"
	"strings"

	"github.com/anishgillella/serene-sub003/internal/application/repository/retriever"
	"github.com/anishgillella/serene-sub003/internal/types"
)

const (
	operatorAnd      = "and"
	operatorEqual    = "eq"
	operatorNotEqual = "ne"
	operatorLess     = "lt"
	operatorIn       = "in"
)

var comparisonOperators = map[string]string{
	operatorEqual:    "==",
	operatorNotEqual: "!=",
	operatorLess:     "<",
}

type convertResult struct {
	exprStr string
	params  map[string]any
}

type filterCondition struct {
	Field    string
	Operator string
	Value    any
}

type filter struct{}

// Convert renders a condition tree as a templated Milvus boolean expression
func (c *filter) Convert(cond *filterCondition) (*convertResult, error) {
	var counter int
	return c.convertCondition(cond, &counter)
}

// segmentCondition translates a segment filter, nil when nothing filters
func segmentCondition(f types.SegmentFilter) *filterCondition {
	var conds []*filterCondition
	if f.SourceKind != "" {
		conds = append(conds, &filterCondition{
			Field: retriever.FieldSourceKind, Operator: operatorEqual, Value: string(f.SourceKind.IndexKind()),
		})
	}
	if f.OriginID != "" {
		conds = append(conds, &filterCondition{
			Field: retriever.FieldOriginID, Operator: operatorEqual, Value: f.OriginID,
		})
	}
	if f.ExcludeOriginID != "" {
		conds = append(conds, &filterCondition{
			Field: retriever.FieldOriginID, Operator: operatorNotEqual, Value: f.ExcludeOriginID,
		})
	}
	if f.RelationshipID != "" {
		conds = append(conds, &filterCondition{
			Field: retriever.FieldRelationshipID, Operator: operatorEqual, Value: f.RelationshipID,
		})
	}
	if f.ChunkIndexBelow > 0 {
		conds = append(conds, &filterCondition{
			Field: retriever.FieldChunkIndex, Operator: operatorLess, Value: int64(f.ChunkIndexBelow),
		})
	}
	if len(conds) == 0 {
		return nil
	}
	return &filterCondition{Operator: operatorAnd, Value: conds}
}

func (c *filter) convertCondition(cond *filterCondition, counter *int) (*convertResult, error) {
	if cond == nil {
		return nil, fmt.Errorf("milvus filter condition is nil")
	}
	switch cond.Operator {
	case operatorEqual, operatorNotEqual, operatorLess:
		return c.convertComparisonCondition(cond, counter)
	case operatorAnd:
		return c.convertLogicalCondition(cond, counter)
	case operatorIn:
		return c.convertInCondition(cond, counter)
	default:
		return nil, fmt.Errorf("unsupported operator: %v", cond.Operator)
	}
}

func (c *filter) convertComparisonCondition(cond *filterCondition, counter *int) (*convertResult, error) {
	if cond.Field == "" || cond.Value == nil {
		return nil, fmt.Errorf("milvus filter condition is nil")
	}
	operator := comparisonOperators[cond.Operator]
	paramName := c.convertParamName(cond.Field, counter)
	return &convertResult{
		exprStr: fmt.Sprintf("%s %s {%s}", cond.Field, operator, paramName),
		params:  map[string]any{paramName: cond.Value},
	}, nil
}

func (c *filter) convertLogicalCondition(cond *filterCondition, counter *int) (*convertResult, error) {
	conds, ok := cond.Value.([]*filterCondition)
	if !ok {
		return nil, fmt.Errorf("invalid logical condition value type")
	}

	var condResult *convertResult
	for _, childCond := range conds {
		childRes, err := c.convertCondition(childCond, counter)
		if err != nil {
			return nil, err
		}
		if condResult == nil {
			condResult = childRes
			continue
		}
		condResult.exprStr = fmt.Sprintf("(%s) %s (%s)", condResult.exprStr, cond.Operator, childRes.exprStr)
		maps.Copy(condResult.params, childRes.params)
	}

	if condResult == nil {
		return nil, fmt.Errorf("empty logical condition")
	}
	return condResult, nil
}

func (c *filter) convertInCondition(cond *filterCondition, counter *int) (*convertResult, error) {
	if cond.Field == "" || cond.Value == nil {
		return nil, fmt.Errorf("milvus filter condition is nil")
	}
	s := reflect.ValueOf(cond.Value)
	if s.Kind() != reflect.Slice || s.Len() <= 0 {
		return nil, fmt.Errorf("in operator value must be a slice with at least one value: %v", cond.Value)
	}
	paramName := c.convertParamName(cond.Field, counter)
	return &convertResult{
		exprStr: fmt.Sprintf("%s in {%s}", cond.Field, paramName),
		params:  map[string]any{paramName: cond.Value},
	}, nil
}

// convertParamName converts field name to a valid Milvus template parameter name.
// Milvus template parameters don't support '.' character, so we replace it with '_'.
func (c *filter) convertParamName(field string, counter *int) string {
	*counter++
	return fmt.Sprintf("%s_%d", strings.ReplaceAll(field, ".", "_"), *counter)
}
