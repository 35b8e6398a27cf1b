package mocks

//go:generate mockgen -destination=./mock_source.go -package=mocks github.com/ashourz/AlgoRoyale-sub003/pkg/marketdata Source
