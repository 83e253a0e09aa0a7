package query

import (
	"testing"

	"odscore/src/models"

	"github.com/stretchr/testify/require"
)

func TestConditionMatch(t *testing.T) {
	partial := models.LongSeq(1, 2)
	partial.SeqFlags = []models.Flag{models.FlagValid, models.FlagInvalid}

	tests := []struct {
		name    string
		op      Operator
		operand models.Value
		value   models.Value
		want    bool
	}{
		{"eq string", OpEQ, models.StringValue("OCT,GES"), models.StringValue("OCT,GES"), true},
		{"eq string differs", OpEQ, models.StringValue("OCT,GES"), models.StringValue("oct,ges"), false},
		{"neq", OpNEQ, models.StringValue("a"), models.StringValue("b"), true},
		{"lt long", OpLT, models.LongValue(7), models.LongValue(5), true},
		{"gte long", OpGTE, models.LongValue(7), models.LongValue(7), true},
		{"gt mixed numeric", OpGT, models.LongValue(2), models.DoubleValue(2.5), true},
		{"lte double", OpLTE, models.DoubleValue(1.5), models.DoubleValue(1.25), true},
		{"date order", OpLT, models.DateValue("20240101000000"), models.DateValue("20231231235959"), true},
		{"sequence any", OpEQ, models.LongValue(5), models.LongSeq(1, 5, 9), true},
		{"sequence none", OpLT, models.LongValue(0), models.LongSeq(1, 5, 9), false},
		{"invalid element skipped", OpEQ, models.LongValue(2), partial, false},
		{"valid element kept", OpEQ, models.LongValue(1), partial, true},
		{"invalid never equal", OpEQ, models.StringValue(""), models.InvalidValue(models.DTString), false},
		{"invalid never unequal", OpNEQ, models.StringValue("x"), models.InvalidValue(models.DTString), false},
		{"is null", OpIsNull, models.Value{}, models.InvalidValue(models.DTString), true},
		{"is null valid", OpIsNull, models.Value{}, models.StringValue("x"), false},
		{"is not null", OpIsNotNull, models.Value{}, models.StringValue("x"), true},
		{"ci eq", OpCIEQ, models.StringValue("ABC"), models.StringValue("abc"), true},
		{"ci neq", OpCINEQ, models.StringValue("ABC"), models.StringValue("abd"), true},
		{"like star", OpLike, models.StringValue("OCT*"), models.StringValue("OCT,GES"), true},
		{"like question", OpLike, models.StringValue("?CT,GE?"), models.StringValue("OCT,GES"), true},
		{"like is case sensitive", OpLike, models.StringValue("oct*"), models.StringValue("OCT,GES"), false},
		{"like escaped star", OpLike, models.StringValue(`a\*`), models.StringValue("a*"), true},
		{"like escaped star literal", OpLike, models.StringValue(`a\*`), models.StringValue("ab"), false},
		{"like regexp chars", OpLike, models.StringValue("a.c"), models.StringValue("abc"), false},
		{"not like", OpNotLike, models.StringValue("OCT*"), models.StringValue("GES"), true},
		{"ci like", OpCILike, models.StringValue("oct*"), models.StringValue("OCT,GES"), true},
		{"in set", OpInSet, models.LongSeq(1, 2, 3), models.LongValue(2), true},
		{"in set miss", OpInSet, models.LongSeq(1, 2, 3), models.LongValue(4), false},
		{"not in set", OpNotInSet, models.LongSeq(1, 2, 3), models.LongValue(4), true},
		{"in string set", OpInSet, models.StringSeq("a", "b"), models.StringValue("b"), true},
		{"between low", OpBetween, models.DoubleSeq(1, 2), models.DoubleValue(1), true},
		{"between high", OpBetween, models.DoubleSeq(1, 2), models.LongValue(2), true},
		{"between outside", OpBetween, models.DoubleSeq(1, 2), models.DoubleValue(2.1), false},
		{"string vs number", OpEQ, models.LongValue(1), models.StringValue("1"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Condition{Attribute: "x", Op: tt.op, Operand: tt.operand}
			require.Equal(t, tt.want, c.Match(tt.value))
			require.Equal(t, tt.want, c.Compile().Match(tt.value))
		})
	}
}

func TestLikePatternCompiledOnce(t *testing.T) {
	w := Leaf(Condition{Attribute: "x", Op: OpLike, Operand: models.StringValue("OCT*")})
	require.NotNil(t, w.Cond.like)
	re := w.Cond.like
	require.True(t, w.Cond.Match(models.StringSeq("GES", "OCT,GES")))
	require.Same(t, re, w.Cond.like)

	ci := Condition{Op: OpCILike, Operand: models.StringValue("oct*")}.Compile()
	require.True(t, ci.like.MatchString("OCT,GES"))

	require.Nil(t, Leaf(Condition{Op: OpEQ, Operand: models.LongValue(1)}).Cond.like)
}

func TestParseOperator(t *testing.T) {
	for _, op := range []Operator{OpEQ, OpNEQ, OpLT, OpGT, OpLTE, OpGTE, OpLike, OpNotLike,
		OpCIEQ, OpCINEQ, OpCILike, OpInSet, OpNotInSet, OpBetween, OpIsNull, OpIsNotNull} {
		parsed, err := ParseOperator(op.String())
		require.NoError(t, err)
		require.Equal(t, op, parsed)
	}
	for sym, want := range map[string]Operator{"==": OpEQ, "=": OpEQ, "<>": OpNEQ, "<=": OpLTE, "in": OpInSet} {
		parsed, err := ParseOperator(sym)
		require.NoError(t, err)
		require.Equal(t, want, parsed)
	}
	_, err := ParseOperator("~=")
	require.Error(t, err)
}
