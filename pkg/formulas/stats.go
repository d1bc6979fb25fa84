// Package formulas holds small numeric helpers shared by the analytics modules.
package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// TradingDaysPerYear is the annualization factor for daily series.
const TradingDaysPerYear = 252

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation (N-1)
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Variance calculates the sample variance (N-1)
func Variance(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.Variance(data, nil)
}

// Covariance calculates the sample covariance between two equally long series
func Covariance(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	return stat.Covariance(x, y, nil)
}

// Correlation calculates the Pearson correlation coefficient between two datasets
func Correlation(x, y []float64) float64 {
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	return stat.Correlation(x, y, nil)
}

// CalculateReturns converts prices to simple returns
// Returns[i] = Price[i+1]/Price[i] - 1
func CalculateReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			returns[i-1] = prices[i]/prices[i-1] - 1
		}
	}

	return returns
}

// CumulativeReturns compounds simple returns into a growth curve starting at 1.
func CumulativeReturns(returns []float64) []float64 {
	curve := make([]float64, len(returns)+1)
	curve[0] = 1
	for i, r := range returns {
		curve[i+1] = curve[i] * (1 + r)
	}
	return curve
}

// AnnualizedReturn scales a mean daily return to a yearly figure
func AnnualizedReturn(meanDaily float64) float64 {
	return meanDaily * TradingDaysPerYear
}

// AnnualizedVolatility calculates annualized volatility from daily returns
// Formula: Std Dev of Daily Returns x sqrt(252 trading days)
func AnnualizedVolatility(dailyReturns []float64) float64 {
	return StdDev(dailyReturns) * math.Sqrt(TradingDaysPerYear)
}

// SharpeRatio returns (return - riskFree) / volatility, or nil when volatility is zero.
// Inputs are annualized.
func SharpeRatio(annualReturn, annualVolatility, riskFree float64) *float64 {
	if annualVolatility <= 0 || math.IsNaN(annualVolatility) {
		return nil
	}
	sharpe := (annualReturn - riskFree) / annualVolatility
	return &sharpe
}

// RollingVolatility returns the annualized rolling sample standard deviation
// (N-1) of daily returns over window observations. Leading values without a
// full window are 0.
func RollingVolatility(dailyReturns []float64, window int) []float64 {
	if window < 2 || len(dailyReturns) < window {
		return make([]float64, len(dailyReturns))
	}
	// talib divides by N
	rolling := talib.StdDev(dailyReturns, window, 1)
	n := float64(window)
	scale := math.Sqrt(TradingDaysPerYear) * math.Sqrt(n/(n-1))
	for i := range rolling {
		rolling[i] *= scale
	}
	return rolling
}

// MovingAverage is a simple moving average; leading values without a full window are 0.
func MovingAverage(values []float64, window int) []float64 {
	if window < 1 || len(values) < window {
		return make([]float64, len(values))
	}
	return talib.Sma(values, window)
}
