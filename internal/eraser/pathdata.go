package eraser

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"collaborative-whiteboard/internal/geometry"
)

var (
	// ErrInvalidPath 表示路径字符串不是合法的 move/line 命令序列
	ErrInvalidPath = errors.New("eraser: invalid path data")
)

// pathPrecision 是写回路径字符串时保留的小数位。
const pathPrecision = 3

// BuildPath 把绝对坐标点列转换成相对 origin 的 "M x y L x y ..." 路径字符串。
func BuildPath(points []geometry.Point, origin geometry.Point) string {
	var b strings.Builder
	for i, p := range points {
		if i == 0 {
			b.WriteString("M ")
		} else {
			b.WriteString(" L ")
		}
		b.WriteString(formatCoord(p.X - origin.X))
		b.WriteByte(' ')
		b.WriteString(formatCoord(p.Y - origin.Y))
	}
	return b.String()
}

func formatCoord(v float64) string {
	scale := math.Pow(10, pathPrecision)
	v = math.Round(v*scale) / scale
	if v == 0 {
		v = 0 // 去掉 -0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParsePath 解析路径字符串，按子路径返回点列（坐标相对对象原点）。
// 支持 M/L/m/l 以及闭合命令 Z/z；M 之后多余的坐标对按 L 处理。
func ParsePath(d string) ([][]geometry.Point, error) {
	tokens, err := tokenize(d)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if !tokens[0].isCmd || (tokens[0].cmd != 'M' && tokens[0].cmd != 'm') {
		return nil, fmt.Errorf("%w: path must start with a move command", ErrInvalidPath)
	}

	var (
		subpaths [][]geometry.Point
		current  []geometry.Point
		cursor   geometry.Point
		cmd      byte
	)
	for i := 0; i < len(tokens); {
		tok := tokens[i]
		if tok.isCmd {
			cmd = tok.cmd
			i++
			if cmd == 'Z' || cmd == 'z' {
				if len(current) > 0 {
					current = append(current, current[0])
					cursor = current[0]
				}
				continue
			}
			if cmd == 'M' || cmd == 'm' {
				if len(current) > 0 {
					subpaths = append(subpaths, current)
				}
				current = nil
			}
			continue
		}
		if i+1 >= len(tokens) || tokens[i+1].isCmd {
			return nil, fmt.Errorf("%w: odd number of coordinates after %q", ErrInvalidPath, cmd)
		}
		x, y := tok.value, tokens[i+1].value
		i += 2
		switch cmd {
		case 'M', 'L':
			cursor = geometry.Point{X: x, Y: y}
		case 'm', 'l':
			cursor = geometry.Point{X: cursor.X + x, Y: cursor.Y + y}
		default:
			return nil, fmt.Errorf("%w: coordinates after close command", ErrInvalidPath)
		}
		current = append(current, cursor)
		// SVG: moveto 之后的坐标对视为 lineto
		if cmd == 'M' {
			cmd = 'L'
		} else if cmd == 'm' {
			cmd = 'l'
		}
	}
	if len(current) > 0 {
		subpaths = append(subpaths, current)
	}
	return subpaths, nil
}

type pathToken struct {
	isCmd bool
	cmd   byte
	value float64
}

func tokenize(d string) ([]pathToken, error) {
	var tokens []pathToken
	for i := 0; i < len(d); {
		c := d[i]
		switch {
		case c == ' ' || c == ',' || c == '\t' || c == '\n' || c == '\r':
			i++
		case strings.IndexByte("MLmlZz", c) >= 0:
			tokens = append(tokens, pathToken{isCmd: true, cmd: c})
			i++
		case c == '-' || c == '+' || c == '.' || (c >= '0' && c <= '9'):
			end := scanNumber(d, i)
			v, err := strconv.ParseFloat(d[i:end], 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad number %q", ErrInvalidPath, d[i:end])
			}
			tokens = append(tokens, pathToken{value: v})
			i = end
		default:
			return nil, fmt.Errorf("%w: unsupported command %q", ErrInvalidPath, c)
		}
	}
	return tokens, nil
}

// scanNumber 返回从 start 开始的数字字面量的结束位置。
func scanNumber(d string, start int) int {
	i := start
	if d[i] == '-' || d[i] == '+' {
		i++
	}
	seenDot, seenExp := false, false
	for i < len(d) {
		c := d[i]
		switch {
		case c >= '0' && c <= '9':
			i++
		case c == '.' && !seenDot && !seenExp:
			seenDot = true
			i++
		case (c == 'e' || c == 'E') && !seenExp:
			seenExp = true
			i++
			if i < len(d) && (d[i] == '-' || d[i] == '+') {
				i++
			}
		default:
			return i
		}
	}
	return i
}

// Offset 把相对坐标平移到画布绝对坐标。
func Offset(points []geometry.Point, origin geometry.Point) []geometry.Point {
	out := make([]geometry.Point, len(points))
	for i, p := range points {
		out[i] = geometry.Point{X: p.X + origin.X, Y: p.Y + origin.Y}
	}
	return out
}
