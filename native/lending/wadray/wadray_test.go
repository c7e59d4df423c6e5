package wadray

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func dec(s string) *uint256.Int { return uint256.MustFromDecimal(s) }

func TestRayMulDivRoundHalfUp(t *testing.T) {
	out, err := RayMul(Ray(), Ray())
	require.NoError(t, err)
	require.Equal(t, Ray(), out)

	out, err = RayMul(dec("1500000000000000000000000000"), dec("500000000000000000000000000"))
	require.NoError(t, err)
	require.Equal(t, dec("750000000000000000000000000"), out)

	// 1 * 0.5 ray rounds up to 1.
	out, err = RayMul(u(1), HalfRay())
	require.NoError(t, err)
	require.Equal(t, u(1), out)

	out, err = RayDiv(u(2), u(3))
	require.NoError(t, err)
	require.Equal(t, dec("666666666666666666666666667"), out)

	out, err = RayDiv(u(0), u(3))
	require.NoError(t, err)
	require.True(t, out.IsZero())
}

func TestWadMulDiv(t *testing.T) {
	out, err := WadMul(u(1), HalfWad())
	require.NoError(t, err)
	require.Equal(t, u(1), out)

	out, err = WadMul(u(1), new(uint256.Int).Sub(HalfWad(), u(1)))
	require.NoError(t, err)
	require.True(t, out.IsZero())

	out, err = WadDiv(u(1), u(3))
	require.NoError(t, err)
	require.Equal(t, u(333333333333333333), out)

	out, err = WadDiv(u(2), u(3))
	require.NoError(t, err)
	require.Equal(t, u(666666666666666667), out)
}

func TestConversions(t *testing.T) {
	out, err := RayToWad(u(500_000_000))
	require.NoError(t, err)
	require.Equal(t, u(1), out)

	out, err = RayToWad(u(499_999_999))
	require.NoError(t, err)
	require.True(t, out.IsZero())

	out, err = WadToRay(Wad())
	require.NoError(t, err)
	require.Equal(t, Ray(), out)
}

func TestPercentMath(t *testing.T) {
	out, err := PercentMul(u(10_000), 7_500)
	require.NoError(t, err)
	require.Equal(t, u(7_500), out)

	out, err = PercentMul(u(1), 5_000)
	require.NoError(t, err)
	require.Equal(t, u(1), out)

	out, err = PercentDiv(u(7_500), 7_500)
	require.NoError(t, err)
	require.Equal(t, u(10_000), out)

	_, err = PercentDiv(u(1), 0)
	require.ErrorIs(t, err, ErrDivisionByZero)
}

func TestOverflowAndDivisionByZero(t *testing.T) {
	_, err := RayMul(Max(), u(2))
	require.ErrorIs(t, err, ErrOverflow)

	_, err = WadToRay(Max())
	require.ErrorIs(t, err, ErrOverflow)

	_, err = RayToWad(Max())
	require.ErrorIs(t, err, ErrOverflow)

	_, err = RayDiv(u(1), u(0))
	require.ErrorIs(t, err, ErrDivisionByZero)

	_, err = WadDiv(Max(), u(1))
	require.ErrorIs(t, err, ErrOverflow)
}

func TestLinearInterest(t *testing.T) {
	out, err := LinearInterest(Ray(), 0, SecondsPerYear)
	require.NoError(t, err)
	require.Equal(t, dec("2000000000000000000000000000"), out)

	out, err = LinearInterest(Ray(), 100, 100+SecondsPerYear/2)
	require.NoError(t, err)
	require.Equal(t, dec("1500000000000000000000000000"), out)

	out, err = LinearInterest(Ray(), 10, 10)
	require.NoError(t, err)
	require.Equal(t, Ray(), out)
}

func TestCompoundedInterest(t *testing.T) {
	out, err := CompoundedInterest(Ray(), 5, 5)
	require.NoError(t, err)
	require.Equal(t, Ray(), out)

	out, err = CompoundedInterest(u(0), 0, 1000)
	require.NoError(t, err)
	require.Equal(t, Ray(), out)

	out, err = CompoundedInterest(Ray(), 0, 1)
	require.NoError(t, err)
	require.Equal(t, dec("1000000031709791983764586504"), out)

	tenPercent := dec("100000000000000000000000000")
	compounded, err := CompoundedInterest(tenPercent, 0, SecondsPerYear)
	require.NoError(t, err)
	linear, err := LinearInterest(tenPercent, 0, SecondsPerYear)
	require.NoError(t, err)
	require.True(t, compounded.Gt(linear))
	require.InDelta(t, 1.10516, ToFloat(compounded, 27), 1e-4)
}

func TestCalcKeepsFirstError(t *testing.T) {
	var c Calc
	out := c.Mul(Max(), u(2))
	require.True(t, out.IsZero())
	require.ErrorIs(t, c.Err(), ErrOverflow)

	out = c.Add(u(1), u(1))
	require.True(t, out.IsZero())
	require.ErrorIs(t, c.Err(), ErrOverflow)

	var d Calc
	require.True(t, d.Sub(u(1), u(2)).IsZero())
	require.ErrorIs(t, d.Err(), ErrUnderflow)

	var e Calc
	require.True(t, e.SubFloor(u(1), u(2)).IsZero())
	require.Equal(t, u(3), e.Add(u(1), u(2)))
	require.NoError(t, e.Err())
}

func TestParse(t *testing.T) {
	w, err := ParseWad("0.04")
	require.NoError(t, err)
	require.Equal(t, u(40_000_000_000_000_000), w)

	bps, err := ParseBps("0.75")
	require.NoError(t, err)
	require.Equal(t, uint64(7_500), bps)

	bps, err = ParseBps("1.05")
	require.NoError(t, err)
	require.Equal(t, uint64(10_500), bps)

	units, err := ParseUnits("1.5", 6)
	require.NoError(t, err)
	require.Equal(t, u(1_500_000), units)

	_, err = ParseUnits("0.0000001", 6)
	require.Error(t, err)

	_, err = ParseWad("-1")
	require.Error(t, err)

	require.Equal(t, "1.5", FormatUnits(u(1_500_000), 6))
}
