// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package calc 提供一个受限的算术表达式求值器。
// 语法只允许数字、变量标识符、四则运算、一元负号与括号；
// 任何其他 token 视为不安全表达式。
package calc

import (
	"strconv"
	"strings"

	pkgerrors "docqa-agent/pkg/errors"
)

// Resolver 解析变量标识符；返回 false 表示未知变量
type Resolver func(name string) (float64, bool)

// MapResolver 基于 map 的 Resolver
func MapResolver(variables map[string]float64) Resolver {
	return func(name string) (float64, bool) {
		v, ok := variables[name]
		return v, ok
	}
}

// Evaluate 求值表达式。失败返回 ErrUnsafeExpression、
// ErrUnknownVariable 或 ErrDivisionByZero。
func Evaluate(expression string, resolve Resolver) (float64, error) {
	normalized := strings.Join(strings.Fields(expression), " ")
	if normalized == "" {
		return 0, pkgerrors.Wrap(pkgerrors.ErrUnsafeExpression, "empty expression")
	}
	if resolve == nil {
		resolve = func(string) (float64, bool) { return 0, false }
	}

	tokens, err := lex(normalized)
	if err != nil {
		return 0, err
	}
	p := &parser{tokens: tokens, resolve: resolve}
	value, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	if p.pos != len(p.tokens) {
		return 0, pkgerrors.Wrapf(pkgerrors.ErrUnsafeExpression, "unexpected token %q", p.tokens[p.pos].text)
	}
	return value, nil
}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokIdent
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
}

func lex(input string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ':
			i++
		case c == '(':
			tokens = append(tokens, token{tokLParen, "("})
			i++
		case c == ')':
			tokens = append(tokens, token{tokRParen, ")"})
			i++
		case c == '+' || c == '-' || c == '*' || c == '/':
			tokens = append(tokens, token{tokOp, string(c)})
			i++
		case c >= '0' && c <= '9':
			j := i
			for j < len(input) && (input[j] >= '0' && input[j] <= '9' || input[j] == '.') {
				j++
			}
			tokens = append(tokens, token{tokNumber, input[i:j]})
			i = j
		case c >= 'A' && c <= 'Z':
			j := i
			for j < len(input) && (input[j] >= 'A' && input[j] <= 'Z' ||
				input[j] >= '0' && input[j] <= '9' || input[j] == '_') {
				j++
			}
			tokens = append(tokens, token{tokIdent, input[i:j]})
			i = j
		default:
			return nil, pkgerrors.Wrapf(pkgerrors.ErrUnsafeExpression, "illegal character %q", string(c))
		}
	}
	if len(tokens) == 0 {
		return nil, pkgerrors.Wrap(pkgerrors.ErrUnsafeExpression, "empty expression")
	}
	return tokens, nil
}

type parser struct {
	tokens  []token
	pos     int
	resolve Resolver
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

// parseExpr 处理 + 和 -
func (p *parser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokOp || (tok.text != "+" && tok.text != "-") {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		if tok.text == "+" {
			left += right
		} else {
			left -= right
		}
	}
}

// parseTerm 处理 * 和 /
func (p *parser) parseTerm() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		tok, ok := p.peek()
		if !ok || tok.kind != tokOp || (tok.text != "*" && tok.text != "/") {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		if tok.text == "*" {
			left *= right
		} else {
			if right == 0 {
				return 0, pkgerrors.Wrap(pkgerrors.ErrDivisionByZero, "division by zero")
			}
			left /= right
		}
	}
}

func (p *parser) parseUnary() (float64, error) {
	tok, ok := p.peek()
	if ok && tok.kind == tokOp && (tok.text == "-" || tok.text == "+") {
		p.pos++
		value, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		if tok.text == "-" {
			return -value, nil
		}
		return value, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (float64, error) {
	tok, ok := p.peek()
	if !ok {
		return 0, pkgerrors.Wrap(pkgerrors.ErrUnsafeExpression, "unexpected end of expression")
	}
	switch tok.kind {
	case tokNumber:
		p.pos++
		value, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return 0, pkgerrors.Wrapf(pkgerrors.ErrUnsafeExpression, "bad number literal %q", tok.text)
		}
		return value, nil
	case tokIdent:
		p.pos++
		value, found := p.resolve(tok.text)
		if !found {
			return 0, pkgerrors.Wrapf(pkgerrors.ErrUnknownVariable, "unknown variable %s", tok.text)
		}
		return value, nil
	case tokLParen:
		p.pos++
		value, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		next, ok := p.peek()
		if !ok || next.kind != tokRParen {
			return 0, pkgerrors.Wrap(pkgerrors.ErrUnsafeExpression, "missing closing parenthesis")
		}
		p.pos++
		return value, nil
	}
	return 0, pkgerrors.Wrapf(pkgerrors.ErrUnsafeExpression, "unexpected token %q", tok.text)
}
