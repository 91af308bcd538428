package txsubmit

import (
	"math/big"
	"strings"

	"github.com/pkg/errors"
)

// StroopsPerLumen 1 XLM = 10,000,000 stroops
const StroopsPerLumen = 10_000_000

// tokenDecimals 资产的小数位数（XLM 及标准 SAC 均为 7）
const tokenDecimals = 7

// ParseAmount 将十进制代币数量解析为 stroops
// 第 7 位小数之后按 round-half-away-from-zero 舍入："10.5" -> 105000000
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("amount is empty")
	}

	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" || s == "." {
		return 0, errors.Errorf("invalid amount %q", s)
	}

	intPart := s
	fracPart := ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		intPart, fracPart = s[:idx], s[idx+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	if !isDigits(intPart) || (fracPart != "" && !isDigits(fracPart)) {
		return 0, errors.Errorf("invalid amount %q", s)
	}

	whole, ok := new(big.Int).SetString(intPart, 10)
	if !ok {
		return 0, errors.Errorf("invalid amount %q", s)
	}
	stroops := new(big.Int).Mul(whole, big.NewInt(StroopsPerLumen))

	if fracPart != "" {
		kept := fracPart
		roundUp := false
		if len(fracPart) > tokenDecimals {
			kept = fracPart[:tokenDecimals]
			// 半数及以上远离零舍入
			roundUp = fracPart[tokenDecimals] >= '5'
		}
		// 右侧补零到 7 位
		kept += strings.Repeat("0", tokenDecimals-len(kept))
		frac, ok := new(big.Int).SetString(kept, 10)
		if !ok {
			return 0, errors.Errorf("invalid amount %q", s)
		}
		if roundUp {
			frac.Add(frac, big.NewInt(1))
		}
		stroops.Add(stroops, frac)
	}

	if negative {
		stroops.Neg(stroops)
	}
	if !stroops.IsInt64() {
		return 0, errors.Errorf("amount %q overflows int64 stroops", s)
	}
	return stroops.Int64(), nil
}

// FormatAmount 将 stroops 渲染为十进制代币数量，去掉尾随零
func FormatAmount(stroops int64) string {
	negative := stroops < 0
	v := new(big.Int).SetInt64(stroops)
	v.Abs(v)

	whole := new(big.Int)
	frac := new(big.Int)
	whole.QuoRem(v, big.NewInt(StroopsPerLumen), frac)

	out := whole.String()
	if frac.Sign() != 0 {
		digits := frac.String()
		digits = strings.Repeat("0", tokenDecimals-len(digits)) + digits
		digits = strings.TrimRight(digits, "0")
		out += "." + digits
	}
	if negative {
		out = "-" + out
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
