package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-core/internal/domain/order"
	"github.com/xenking/storefront-core/internal/domain/stats"
)

var errBadBody = errors.New("invalid request body")

func readBody(w http.ResponseWriter, r *http.Request) (*jx.Decoder, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(errBadBody, err.Error())
	}
	return jx.DecodeBytes(data), nil
}

// str reads a string, treating null as empty.
func str(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

// money reads a number or numeric string, treating null as zero.
func money(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Null:
		return decimal.Zero, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(n.String())
	}
}

func decodeCreateOrder(d *jx.Decoder) (order.CreateRequest, error) {
	var req order.CreateRequest
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "items":
			return d.Arr(func(d *jx.Decoder) error {
				item, err := decodeItem(d)
				if err != nil {
					return err
				}
				req.Items = append(req.Items, item)
				return nil
			})
		case "id":
			req.ID, err = str(d)
		case "customerName":
			req.CustomerName, err = str(d)
		case "customerPhone":
			req.CustomerPhone, err = str(d)
		case "city":
			req.City, err = str(d)
		case "address":
			req.Address, err = str(d)
		case "email":
			req.Email, err = str(d)
		case "userId":
			req.UserID, err = str(d)
		case "status":
			req.Status, err = str(d)
		case "paymentSessionId":
			req.PaymentSessionID, err = str(d)
		case "paymentMethod":
			req.PaymentMethod, err = str(d)
		case "paymentStatus":
			req.PaymentStatus, err = str(d)
		default:
			return d.Skip()
		}
		return err
	})
	if err != nil {
		return order.CreateRequest{}, errors.Wrap(errBadBody, err.Error())
	}
	return req, nil
}

func decodeItem(d *jx.Decoder) (order.ItemRequest, error) {
	var item order.ItemRequest
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id", "productId":
			item.ProductID, err = str(d)
		case "name":
			item.Name, err = str(d)
		case "quantity":
			item.Quantity, err = d.Int()
		case "price":
			item.Price, err = money(d)
		default:
			return d.Skip()
		}
		return err
	})
	return item, err
}

func decodeStatus(d *jx.Decoder) (string, error) {
	var status string
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "status" {
			return d.Skip()
		}
		var err error
		status, err = str(d)
		return err
	})
	if err != nil {
		return "", errors.Wrap(errBadBody, err.Error())
	}
	return status, nil
}

func num(e *jx.Encoder, v decimal.Decimal) {
	e.Num(jx.Num(v.String()))
}

func optStr(e *jx.Encoder, name, v string) {
	if v != "" {
		e.Field(name, func(e *jx.Encoder) { e.Str(v) })
	}
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("date", func(e *jx.Encoder) { e.Str(o.CreatedAt.UTC().Format(time.RFC3339)) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, item := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("id", func(e *jx.Encoder) { e.Str(item.ProductID) })
						optStr(e, "name", item.Name)
						e.Field("quantity", func(e *jx.Encoder) { e.Int(item.Quantity) })
						e.Field("price", func(e *jx.Encoder) { num(e, item.UnitPrice) })
					})
				}
			})
		})
		e.Field("total", func(e *jx.Encoder) { num(e, o.Total) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		optStr(e, "customerName", o.CustomerName)
		optStr(e, "customerPhone", o.CustomerPhone)
		optStr(e, "city", o.City)
		optStr(e, "address", o.Address)
		optStr(e, "email", o.Email)
		optStr(e, "paymentSessionId", o.PaymentSessionID)
		optStr(e, "paymentMethod", o.PaymentMethod)
		optStr(e, "paymentStatus", o.PaymentStatus)
	})
}

func encodeDashboard(e *jx.Encoder, d *stats.Dashboard) {
	ints := []struct {
		name string
		v    int64
	}{
		{"totalProducts", d.TotalProducts},
		{"totalOrders", d.TotalOrders},
		{"totalUsers", d.TotalUsers},
		{"totalCustomers", d.TotalCustomers},
		{"totalMessages", d.TotalMessages},
		{"totalServiceRequests", d.TotalServiceRequests},
		{"pendingOrders", d.PendingOrders},
		{"newMessages", d.NewMessages},
		{"newServiceRequests", d.NewServiceRequests},
		{"totalStockQuantity", d.TotalStockQuantity},
		{"totalSoldQuantity", d.TotalSoldQuantity},
		{"lowStockProducts", d.LowStockProducts},
		{"totalProductsSold", d.TotalProductsSold},
	}
	e.Obj(func(e *jx.Encoder) {
		for _, f := range ints {
			e.Field(f.name, func(e *jx.Encoder) { e.Int64(f.v) })
		}
		e.Field("totalRevenue", func(e *jx.Encoder) { num(e, d.TotalRevenue) })
		e.Field("totalProfit", func(e *jx.Encoder) { num(e, d.TotalProfit) })
		e.Field("profitSource", func(e *jx.Encoder) { e.Str(string(d.ProfitSource)) })
	})
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	fn(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("error", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}

func writeDetails(w http.ResponseWriter, status int, msg string, details []string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("error", func(e *jx.Encoder) { e.Str(msg) })
			e.Field("details", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for _, d := range details {
						e.Str(d)
					}
				})
			})
		})
	})
}
