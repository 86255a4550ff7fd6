package domain

// OrderBook representa el libro de órdenes de un token.
type OrderBook struct {
	TokenID   string
	Bids      []BookEntry // ordenados mayor a menor precio
	Asks      []BookEntry // ordenados menor a mayor precio
	LastTrade float64     // último precio negociado, 0 si no hay
}

// BookEntry es un nivel de precio en el orderbook.
type BookEntry struct {
	Price float64
	Size  float64
}

// BestBid devuelve el mejor precio de compra (mayor bid).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk devuelve el mejor precio de venta (menor ask).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// BuyPrice devuelve el precio efectivo que pagaría un comprador ahora:
// best ask si existe, best bid como aproximación si no hay asks, y el
// último trade como último recurso. Devuelve 0 si no hay ningún dato
// o si el valor cae fuera de (0,1).
func (ob OrderBook) BuyPrice() float64 {
	p := ob.BestAsk()
	if p == 0 {
		p = ob.BestBid()
	}
	if p == 0 {
		p = ob.LastTrade
	}
	if p <= 0 || p >= 1 {
		return 0
	}
	return p
}
